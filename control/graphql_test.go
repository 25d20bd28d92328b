package control

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fraendk-lang/elastic-pulse-studio/export"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

type fakeExporter struct {
	started []export.Settings
}

func (f *fakeExporter) StartExport(s export.Settings) error {
	f.started = append(f.started, s)
	return nil
}
func (f *fakeExporter) IsExporting() bool   { return len(f.started) > 0 }
func (f *fakeExporter) Progress() float64   { return 0 }
func (f *fakeExporter) CurrentFrame() int   { return 0 }
func (f *fakeExporter) TotalFrames() int    { return 0 }
func (f *fakeExporter) State() export.State { return export.Preparing }
func (f *fakeExporter) Err() error          { return nil }

func newAPI(t *testing.T, rec Exporter) *API {
	t.Helper()
	eng := newEngine(t)
	api, err := NewAPI(eng, NewRegistry(eng), rec)
	if err != nil {
		t.Fatal(err)
	}
	return api
}

func query(t *testing.T, api *API, q string) map[string]interface{} {
	t.Helper()
	res := api.Query(q, nil)
	if res.HasErrors() {
		t.Fatalf("%s: %v", q, res.Errors)
	}
	return res.Data.(map[string]interface{})
}

func TestQueryMaster(t *testing.T) {
	api := newAPI(t, nil)
	data := query(t, api, `{ master { bloom bpm strobe backgroundType } }`)
	m := data["master"].(map[string]interface{})
	if m["bloom"] != 0.2 || m["bpm"] != 128.0 || m["strobe"] != false || m["backgroundType"] != "none" {
		t.Fatalf("master = %v", m)
	}
}

func TestMutateMaster(t *testing.T) {
	api := newAPI(t, nil)
	data := query(t, api, `mutation { master(params: {bloom: 0.9, backgroundType: "grid", invert: true}) { bloom backgroundType } }`)
	m := data["master"].(map[string]interface{})
	if m["bloom"] != 0.9 || m["backgroundType"] != "grid" {
		t.Fatalf("master = %v", m)
	}
	got := api.eng.Session.Snapshot().Master
	if got.Bloom != 0.9 || got.Background != timeline.Grid || !got.Invert {
		t.Fatalf("session master = %+v", got)
	}

	res := api.Query(`mutation { master(params: {backgroundType: "plaid"}) { bloom } }`, nil)
	if !res.HasErrors() {
		t.Fatal("expected error for unknown background")
	}
	if api.eng.Session.Snapshot().Master.Background != timeline.Grid {
		t.Fatal("failed mutation changed the session")
	}
}

func TestMutateUpdate(t *testing.T) {
	api := newAPI(t, nil)
	data := query(t, api, `mutation { update(param: "master.feedback", value: 0.4) }`)
	if data["update"] != true {
		t.Fatalf("update = %v", data["update"])
	}
	if fb := api.eng.Session.Snapshot().Master.Feedback; fb != 0.4 {
		t.Fatalf("feedback = %v", fb)
	}
	if res := api.Query(`mutation { update(param: "nope", value: 1) }`, nil); !res.HasErrors() {
		t.Fatal("expected error for unknown param")
	}
}

func TestTransportMutations(t *testing.T) {
	api := newAPI(t, nil)
	data := query(t, api, `mutation { seek(time: 3) { time playing duration } }`)
	tr := data["seek"].(map[string]interface{})
	if tr["time"] != 3.0 || tr["playing"] != false || tr["duration"] != 10.0 {
		t.Fatalf("seek = %v", tr)
	}
	query(t, api, `mutation { play { playing } }`)
	if !api.eng.Transport.Playing() {
		t.Fatal("not playing")
	}
	query(t, api, `mutation { pause { playing } }`)
	if api.eng.Transport.Playing() {
		t.Fatal("still playing")
	}
}

func TestQueryFeatures(t *testing.T) {
	api := newAPI(t, nil)
	data := query(t, api, `{ features { bass kick vol bpm } }`)
	f := data["features"].(map[string]interface{})
	if f["bass"] != 0.0 || f["bpm"] != 0.0 {
		t.Fatalf("features = %v", f)
	}
}

func TestStartExport(t *testing.T) {
	api := newAPI(t, nil)
	if res := api.Query(`mutation { startExport { state } }`, nil); !res.HasErrors() {
		t.Fatal("expected error without an exporter")
	}
	data := query(t, api, `{ export { state exporting } }`)
	if e := data["export"].(map[string]interface{}); e["state"] != export.Idle.String() || e["exporting"] != false {
		t.Fatalf("export = %v", e)
	}

	rec := &fakeExporter{}
	api = newAPI(t, rec)
	data = query(t, api, `mutation { startExport(settings: {format: "singleFrame", width: 640, height: 360}) { state exporting } }`)
	e := data["startExport"].(map[string]interface{})
	if e["state"] != export.Preparing.String() || e["exporting"] != true {
		t.Fatalf("export = %v", e)
	}
	if len(rec.started) != 1 {
		t.Fatalf("started %d exports", len(rec.started))
	}
	s := rec.started[0]
	if s.Format != export.SingleFrame || s.Width != 640 || s.Height != 360 {
		t.Fatalf("settings = %+v", s)
	}
}

func TestServerGraphql(t *testing.T) {
	api := newAPI(t, nil)
	srv := httptest.NewServer(NewServer(api, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/graphql?query=" + url.QueryEscape("{ master { bpm } }"))
	if err != nil {
		t.Fatal(err)
	}
	var v1 struct {
		Data struct {
			Master struct{ BPM float64 }
		}
	}
	err = json.NewDecoder(resp.Body).Decode(&v1)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if v1.Data.Master.BPM != 128 {
		t.Fatalf("v1 bpm = %v", v1.Data.Master.BPM)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"query":     `mutation($v: Float!) { update(param: "master.bloom", value: $v) }`,
		"variables": map[string]interface{}{"v": 0.55},
	})
	resp, err = http.Post(srv.URL+"/api/v2/graphql", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if b := api.eng.Session.Snapshot().Master.Bloom; b != 0.55 {
		t.Fatalf("bloom = %v", b)
	}

	resp, err = http.Post(srv.URL+"/api/v2/graphql", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServerWebsocket(t *testing.T) {
	api := newAPI(t, nil)
	srv := httptest.NewServer(NewServer(api, ""))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/status", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ParamMessage{Param: "master.bloom", Value: 0.33}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StatusMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Transport == nil || msg.Transport.Duration != 10 {
		t.Fatalf("status = %+v", msg)
	}
	if _, ok := msg.Features["bass"]; !ok {
		t.Fatalf("features = %v", msg.Features)
	}

	deadline := time.Now().Add(2 * time.Second)
	for api.eng.Session.Snapshot().Master.Bloom != 0.33 {
		if time.Now().After(deadline) {
			t.Fatal("websocket param not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerMIDI(t *testing.T) {
	api := newAPI(t, nil)
	srv := NewServer(api, "")
	m := NewMapper(api.reg.Apply)
	m.Set(Mapping{Param: "master.bloom", Kind: CC, Number: 7, Max: 1})
	srv.HandleMIDI(m)
	hs := httptest.NewServer(srv)
	defer hs.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http")+"/ws/midi", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0xb0, 7, 127}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for api.eng.Session.Snapshot().Master.Bloom != 1 {
		if time.Now().After(deadline) {
			t.Fatal("midi message not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
