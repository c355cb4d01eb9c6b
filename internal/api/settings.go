package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"bnpl-risk/internal/policy"
)

// flexNumber accepts a JSON number or a numeric string.
type flexNumber struct {
	set   bool
	value float64
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	n.set, n.value = true, v
	return nil
}

// settingsRequest is a partial settings update. Keys not listed keep their
// current value; integer settings are truncated toward zero.
type settingsRequest struct {
	Threshold flexNumber `json:"threshold"`
	MinFICO   flexNumber `json:"min_fico"`
	MaxDTI    flexNumber `json:"max_dti"`
}

func (r settingsRequest) patch() policy.SettingsPatch {
	var p policy.SettingsPatch
	if r.Threshold.set {
		v := r.Threshold.value
		p.Threshold = &v
	}
	if r.MinFICO.set {
		v := truncInt(r.MinFICO.value)
		p.MinFICO = &v
	}
	if r.MaxDTI.set {
		v := truncInt(r.MaxDTI.value)
		p.MaxDTI = &v
	}
	return p
}

// truncInt maps values outside the int range to -1 so validation rejects them.
func truncInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v > math.MaxInt32 || v < math.MinInt32 {
		return -1
	}
	return int(math.Trunc(v))
}
