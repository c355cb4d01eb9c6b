package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bnpl-risk/internal/common"
	"bnpl-risk/internal/features"
	"bnpl-risk/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)

		var a features.Applicant
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&a)) && assert.NotNil(t, a.FICO) {
			assert.Equal(t, 720.0, *a.FICO)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"probability_of_default":0.05,"decision":"APPROVE","recommended_limit":1000,"expected_profit":612.5}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	res, err := c.PredictApplicant(context.Background(), features.Applicant{
		LoanAmount: features.Float(10000),
		FICO:       features.Float(720),
		DTI:        features.Float(15),
	})
	require.NoError(t, err)
	assert.Equal(t, policy.Approve, res.Decision)
	assert.Equal(t, 1000, res.RecommendedLimit)
	assert.InDelta(t, 612.5, res.ExpectedProfit, 1e-9)
}

func TestAPIErrorUnwrapsToKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"SCHEMA_ERROR","field":"dti","error":"schema error: dti: must be non-negative, got -1"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Predict(context.Background(), map[string]float64{"dti": -1})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "dti", apiErr.Field)
	assert.True(t, errors.Is(err, common.ErrSchema))
	assert.False(t, errors.Is(err, common.ErrConfig))
}

func TestUpdateSettingsSendsOnlyPatchedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"min_fico": 650.0}, body)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"threshold":0.15,"min_fico":650,"max_dti":40}`))
	}))
	defer srv.Close()

	minFICO := 650
	got, err := New(srv.URL, time.Second).UpdateSettings(context.Background(), policy.SettingsPatch{MinFICO: &minFICO})
	require.NoError(t, err)
	assert.Equal(t, policy.Settings{Threshold: 0.15, MinFICO: 650, MaxDTI: 40}, got)
}

func TestHealthDecodesUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"healthy":false,"model_loaded":false,"last_error":"missing artifact"}`))
	}))
	defer srv.Close()

	h, err := New(srv.URL, time.Second).Health(context.Background())
	require.NoError(t, err)
	assert.False(t, h.ModelLoaded)
	assert.Equal(t, "missing artifact", h.LastError)
}

func TestWaitReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Drop the connection to look like a server still starting.
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
					return
				}
			}
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"active","model_loaded":true,"model_version":"v1"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := New(srv.URL, time.Second)
	c.rest.SetRetryCount(0)
	st, err := c.WaitReady(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, st.ModelLoaded)
	assert.Equal(t, "v1", st.ModelVersion)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWaitReadyGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := New("http://127.0.0.1:1", 50*time.Millisecond).WaitReady(ctx, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api not ready")
}
