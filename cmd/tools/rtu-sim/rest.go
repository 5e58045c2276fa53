package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fisaks/flowctl/internal/logging"
	"github.com/fisaks/flowctl/internal/sim"
)

type registerView struct {
	Address uint16 `json:"address"`
	Value   uint16 `json:"value"`
}

type deviceView struct {
	Name      string         `json:"name"`
	SlaveID   uint8          `json:"slaveId"`
	Port      string         `json:"port"`
	Registers []registerView `json:"registers"`
}

type valueRequest struct {
	Value *float64 `json:"value"`
}

func newRestMux(s *sim.Simulator) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /device/{deviceName}", func(w http.ResponseWriter, r *http.Request) {
		getDeviceHandler(s, w, r)
	})
	mux.HandleFunc("GET /device/{deviceName}/register/{address}", func(w http.ResponseWriter, r *http.Request) {
		getRegisterHandler(s, w, r)
	})
	mux.HandleFunc("PUT /device/{deviceName}/register/{address}", func(w http.ResponseWriter, r *http.Request) {
		setRegisterHandler(s, w, r)
	})

	// flow override, e.g. to simulate a clogged line
	mux.HandleFunc("PUT /flow", func(w http.ResponseWriter, r *http.Request) {
		setFlowHandler(s, w, r)
	})
	mux.HandleFunc("DELETE /flow", func(w http.ResponseWriter, r *http.Request) {
		s.SetFlowOverride(nil)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func StartRestAPI(addr string, s *sim.Simulator) error {
	logging.Info("RTU Simulator REST API listening", "addr", addr)
	return http.ListenAndServe(addr, newRestMux(s))
}

/* ------------------------ helpers: json & errors ------------------------ */

func readJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseAddress(w http.ResponseWriter, s string) (uint16, bool) {
	a, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid register address")
		return 0, false
	}
	return uint16(a), true
}

func lookupDevice(s *sim.Simulator, w http.ResponseWriter, r *http.Request) (*sim.Device, bool) {
	d := s.Device(r.PathValue("deviceName"))
	if d == nil {
		fail(w, http.StatusNotFound, "device not found")
		return nil, false
	}
	return d, true
}

/* ------------------------------ handlers -------------------------------- */

func getDeviceHandler(s *sim.Simulator, w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDevice(s, w, r)
	if !ok {
		return
	}
	view := deviceView{Name: d.Name, SlaveID: d.SlaveID, Port: d.Port}
	for _, a := range sim.Registers[d.Kind] {
		view.Registers = append(view.Registers, registerView{Address: a, Value: s.Read(d, a)})
	}
	writeJSON(w, http.StatusOK, view)
}

func getRegisterHandler(s *sim.Simulator, w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDevice(s, w, r)
	if !ok {
		return
	}
	addr, ok := parseAddress(w, r.PathValue("address"))
	if !ok {
		return
	}
	v := s.Read(d, addr)
	writeJSON(w, http.StatusOK, registerView{Address: addr, Value: v})
}

func setRegisterHandler(s *sim.Simulator, w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDevice(s, w, r)
	if !ok {
		return
	}
	addr, ok := parseAddress(w, r.PathValue("address"))
	if !ok {
		return
	}
	var req valueRequest
	if err := readJSON(r, &req); err != nil || req.Value == nil {
		fail(w, http.StatusBadRequest, "bad json")
		return
	}
	if *req.Value < 0 || *req.Value > 65535 || *req.Value != float64(uint16(*req.Value)) {
		fail(w, http.StatusBadRequest, "value must be 0..65535")
		return
	}
	s.Write(d, addr, uint16(*req.Value))
	writeJSON(w, http.StatusOK, registerView{Address: addr, Value: uint16(*req.Value)})
}

func setFlowHandler(s *sim.Simulator, w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := readJSON(r, &req); err != nil || req.Value == nil {
		fail(w, http.StatusBadRequest, "bad json")
		return
	}
	v := *req.Value
	s.SetFlowOverride(&v)
	writeJSON(w, http.StatusOK, map[string]float64{"flow": v})
}
