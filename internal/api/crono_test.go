package api

import (
	"net/http"
	"testing"
)

func TestCrono_Lifecycle(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/devices/SWITCH_1/crono", "")
	if resp := decode(t, w); resp["active"] != false {
		t.Fatalf("idle crono = %v, want active=false", resp)
	}

	w = env.do(t, http.MethodPost, "/api/v1/devices/SWITCH_1/crono", `{"duration":30,"isCustom":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if resp := decode(t, w); resp["duration"] != float64(1800) {
		t.Errorf("duration = %v, want 1800 seconds", resp["duration"])
	}

	w = env.do(t, http.MethodGet, "/api/v1/devices/SWITCH_1/crono", "")
	resp := decode(t, w)
	if resp["active"] != true || resp["isCustom"] != true {
		t.Fatalf("running crono = %v", resp)
	}
	remaining, _ := resp["remaining"].(float64) //nolint:errcheck // checked below
	if remaining < 1790 || remaining > 1800 {
		t.Errorf("remaining = %v, want about 1800", remaining)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/devices/SWITCH_1/crono", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want %d", w.Code, http.StatusOK)
	}
	if env.cronos.Count() != 0 {
		t.Errorf("cronos after cancel = %d, want 0", env.cronos.Count())
	}
}

func TestCrono_FractionalMinutes(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/devices/SWITCH_1/crono", `{"duration":0.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if tm, ok := env.cronos.Get("SWITCH_1"); !ok || tm.Duration != 30 {
		t.Errorf("timer = %+v, %v; want 30 seconds", tm, ok)
	}
}

func TestCrono_Validation(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"zero", "/api/v1/devices/SWITCH_1/crono", `{"duration":0}`, http.StatusBadRequest},
		{"negative", "/api/v1/devices/SWITCH_1/crono", `{"duration":-5}`, http.StatusBadRequest},
		{"not a number", "/api/v1/devices/SWITCH_1/crono", `{"duration":"ten"}`, http.StatusBadRequest},
		{"over seven days", "/api/v1/devices/SWITCH_1/crono", `{"duration":10081}`, http.StatusBadRequest},
		{"huge", "/api/v1/devices/SWITCH_1/crono", `{"duration":1e300}`, http.StatusBadRequest},
		{"under a second", "/api/v1/devices/SWITCH_1/crono", `{"duration":0.001}`, http.StatusBadRequest},
		{"unknown device", "/api/v1/devices/NOPE/crono", `{"duration":5}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
	if env.cronos.Count() != 0 {
		t.Errorf("rejected requests started %d cronos", env.cronos.Count())
	}
}

func TestCrono_CancelWhenIdle(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodDelete, "/api/v1/devices/SWITCH_1/crono", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
