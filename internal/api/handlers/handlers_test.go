package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/caretrack/doseguard/internal/adherence"
	"github.com/caretrack/doseguard/internal/api/middleware"
	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/infrastructure/memory"
	"github.com/caretrack/doseguard/internal/interaction"
	"github.com/caretrack/doseguard/internal/observability/metrics"
	"github.com/caretrack/doseguard/internal/schedule"
	"github.com/caretrack/doseguard/pkg/clock"
)

const (
	ownerKey     = "owner-key"
	caregiverKey = "caregiver-key"
	strangerKey  = "stranger-key"
)

type testAPI struct {
	t       *testing.T
	router  http.Handler
	store   *memory.Store
	clock   *clock.ManagedClock
	metrics *metrics.Metrics
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewManaged(time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC))
	m := metrics.New(prometheus.NewRegistry())

	n := 0
	h := New(Deps{
		Prescriptions: store.Prescriptions,
		Patients:      store.Patients,
		Medications:   store.Medications,
		Consumption:   store.Consumption,
		Alerts:        store.Alerts,
		Clock:         clk,
		Metrics:       m,
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}, zaptest.NewLogger(t))

	r := chi.NewRouter()
	r.Use(middleware.APIKeyAuth(map[string]string{
		ownerKey:     "acct-owner",
		caregiverKey: "acct-caregiver",
		strangerKey:  "acct-stranger",
	}))
	r.Mount("/api/v1", h.Routes())

	return &testAPI{t: t, router: r, store: store, clock: clk, metrics: m}
}

func (a *testAPI) do(method, path, key string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("X-API-Key", key)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// create posts body and decodes the response into out, failing unless want is returned
func (a *testAPI) create(path string, body any, want int, out any) {
	a.t.Helper()
	rec := a.do(http.MethodPost, path, ownerKey, body)
	if rec.Code != want {
		a.t.Fatalf("POST %s = %d, want %d: %s", path, rec.Code, want, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			a.t.Fatalf("decode %s: %v", path, err)
		}
	}
}

func (a *testAPI) patient(name string) string {
	var p struct{ ID string }
	a.create("/patients", map[string]any{"name": name}, http.StatusCreated, &p)
	return p.ID
}

func (a *testAPI) medication(name string) string {
	var m struct{ ID string }
	a.create("/medications", map[string]any{"name": name, "dosage": "5", "unit": "mg"}, http.StatusCreated, &m)
	return m.ID
}

func prescriptionBody(patientID, medID string, times ...string) map[string]any {
	return map[string]any{
		"patient_id":     patientID,
		"medication_id":  medID,
		"times":          times,
		"start_date":     "2026-05-10",
		"continuous_use": true,
		"dose_amount":    1,
	}
}

func TestCreatePrescription_InteractionGate(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")
	warfarin := api.medication("Varfarina")
	ibuprofen := api.medication("Ibuprofeno")

	api.create("/prescriptions", prescriptionBody(pid, warfarin, "08:00"), http.StatusCreated, nil)

	var conflict ConflictResponse
	api.create("/prescriptions", prescriptionBody(pid, ibuprofen, "12:00"), http.StatusConflict, &conflict)
	if conflict.Highest != interaction.SeverityHigh || len(conflict.Findings) != 1 {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
	if conflict.Findings[0].Medication != "Varfarina" {
		t.Errorf("finding should name the active medication, got %q", conflict.Findings[0].Medication)
	}

	body := prescriptionBody(pid, ibuprofen, "12:00")
	body["acknowledge_interactions"] = true
	var saved PrescriptionResponse
	api.create("/prescriptions", body, http.StatusCreated, &saved)
	if saved.Prescription == nil || len(saved.Findings) != 1 {
		t.Errorf("acknowledged save should echo findings: %+v", saved)
	}

	if got := testutil.ToFloat64(api.metrics.InteractionFindings.WithLabelValues("high")); got != 2 {
		t.Errorf("high findings metric = %v, want 2", got)
	}
}

func TestUpdatePrescription_ExcludesItself(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")
	ibuprofen := api.medication("Ibuprofeno")

	var saved PrescriptionResponse
	api.create("/prescriptions", prescriptionBody(pid, ibuprofen, "08:00"), http.StatusCreated, &saved)

	body := prescriptionBody(pid, ibuprofen, "09:00", "21:00")
	rec := api.do(http.MethodPut, "/prescriptions/"+saved.Prescription.ID, ownerKey, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body.String())
	}
	var updated PrescriptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if len(updated.Prescription.Times) != 2 || len(updated.Findings) != 0 {
		t.Errorf("unexpected update result %+v", updated)
	}
}

func TestCreatePrescription_Validation(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")
	med := api.medication("Losartana")

	dup := prescriptionBody(pid, med, "08:00", "08:00")
	api.create("/prescriptions", dup, http.StatusBadRequest, nil)

	bounded := prescriptionBody(pid, med, "08:00")
	bounded["continuous_use"] = false
	api.create("/prescriptions", bounded, http.StatusBadRequest, nil)

	bad := prescriptionBody(pid, med, "25:00")
	api.create("/prescriptions", bad, http.StatusBadRequest, nil)

	if rec := api.do(http.MethodPost, "/prescriptions", strangerKey, prescriptionBody(pid, med, "08:00")); rec.Code != http.StatusForbidden {
		t.Errorf("stranger create = %d, want 403", rec.Code)
	}
}

func TestCheckInteractions(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")
	warfarin := api.medication("Varfarina")
	api.create("/prescriptions", prescriptionBody(pid, warfarin, "08:00"), http.StatusCreated, nil)

	var resp CheckResponse
	api.create("/interactions/check", map[string]any{"patient_id": pid, "medication_name": "Paracetamol"}, http.StatusOK, &resp)
	if len(resp.Findings) != 0 || resp.CheckedAgainst != 1 {
		t.Errorf("paracetamol should not conflict: %+v", resp)
	}

	api.create("/interactions/check", map[string]any{"patient_id": pid, "medication_name": "ibuprofeno 600"}, http.StatusOK, &resp)
	if resp.Highest != interaction.SeverityHigh || len(resp.Groups) == 0 {
		t.Errorf("expected high finding: %+v", resp)
	}

	api.create("/interactions/check", map[string]any{"patient_id": pid}, http.StatusBadRequest, nil)
}

func TestCheckInteractions_ForeignMedication(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")

	rec := api.do(http.MethodPost, "/medications", strangerKey, map[string]any{"name": "Stranger Secret Drug", "dosage": "5", "unit": "mg"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("stranger medication = %d: %s", rec.Code, rec.Body.String())
	}
	var med struct{ ID string }
	if err := json.Unmarshal(rec.Body.Bytes(), &med); err != nil {
		t.Fatal(err)
	}

	rec = api.do(http.MethodPost, "/interactions/check", ownerKey, map[string]any{"patient_id": pid, "medication_id": med.ID})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("check with foreign medication = %d, want 403: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "Stranger Secret Drug") {
		t.Errorf("response leaks the medication name: %s", rec.Body.String())
	}

	own := api.medication("Ibuprofeno")
	api.create("/interactions/check", map[string]any{"patient_id": pid, "medication_id": own}, http.StatusOK, nil)
}

func TestConsumption_RecordOncePerDose(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")
	med := api.medication("Losartana")
	var saved PrescriptionResponse
	api.create("/prescriptions", prescriptionBody(pid, med, "08:00", "20:00"), http.StatusCreated, &saved)
	rx := saved.Prescription.ID

	dose := map[string]any{"prescription_id": rx, "date": "2026-05-10", "scheduled_time": "08:00", "status": "taken"}
	var entry struct{ ID string }
	api.create("/consumption", dose, http.StatusCreated, &entry)
	api.create("/consumption", dose, http.StatusConflict, nil)

	wrongTime := map[string]any{"prescription_id": rx, "date": "2026-05-10", "scheduled_time": "09:00", "status": "taken"}
	api.create("/consumption", wrongTime, http.StatusBadRequest, nil)

	badStatus := map[string]any{"prescription_id": rx, "date": "2026-05-10", "scheduled_time": "20:00", "status": "maybe"}
	api.create("/consumption", badStatus, http.StatusBadRequest, nil)

	rec := api.do(http.MethodPut, "/consumption/"+entry.ID, ownerKey, map[string]any{"status": "forgotten"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(http.MethodDelete, "/prescriptions/"+rx, ownerKey, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if _, err := api.store.Consumption.Get(t.Context(), entry.ID); err != nil {
		t.Errorf("deleting a prescription must keep its log: %v", err)
	}
}

func TestAdherenceDay(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")
	med := api.medication("Losartana")
	var saved PrescriptionResponse
	api.create("/prescriptions", prescriptionBody(pid, med, "08:00", "11:00", "20:00"), http.StatusCreated, &saved)
	rx := saved.Prescription.ID

	api.create("/consumption", map[string]any{"prescription_id": rx, "date": "2026-05-10", "scheduled_time": "08:00", "status": "taken"}, http.StatusCreated, nil)

	rec := api.do(http.MethodGet, "/patients/"+pid+"/adherence/2026-05-10", ownerKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("day = %d: %s", rec.Code, rec.Body.String())
	}
	var day DayDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &day); err != nil {
		t.Fatal(err)
	}
	if day.Status != adherence.StatusPartial || len(day.Slots) != 3 {
		t.Fatalf("unexpected day %+v", day)
	}
	want := []adherence.SlotStatus{adherence.SlotTaken, adherence.SlotOverdue, adherence.SlotUpcoming}
	for i, s := range day.Slots {
		if s.Status != want[i] {
			t.Errorf("slot %s = %s, want %s", s.Time, s.Status, want[i])
		}
	}

	if rec := api.do(http.MethodGet, "/patients/"+pid+"/adherence/not-a-date", ownerKey, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date = %d", rec.Code)
	}
}

func TestAdherenceRangeAndReport(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")
	med := api.medication("Losartana")
	body := prescriptionBody(pid, med, "08:00")
	body["start_date"] = "2026-05-08"
	var saved PrescriptionResponse
	api.create("/prescriptions", body, http.StatusCreated, &saved)
	rx := saved.Prescription.ID

	api.create("/consumption", map[string]any{"prescription_id": rx, "date": "2026-05-09", "scheduled_time": "08:00", "status": "taken"}, http.StatusCreated, nil)

	rec := api.do(http.MethodGet, "/patients/"+pid+"/adherence?from=2026-05-07&to=2026-05-11", ownerKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("range = %d: %s", rec.Code, rec.Body.String())
	}
	var days []adherence.Day
	if err := json.Unmarshal(rec.Body.Bytes(), &days); err != nil {
		t.Fatal(err)
	}
	want := []adherence.Status{adherence.StatusEmpty, adherence.StatusMissed, adherence.StatusFull, adherence.StatusPending, adherence.StatusPending}
	if len(days) != len(want) {
		t.Fatalf("got %d days", len(days))
	}
	for i, d := range days {
		if d.Status != want[i] {
			t.Errorf("%s = %s, want %s", d.Date, d.Status, want[i])
		}
	}

	rec = api.do(http.MethodGet, "/patients/"+pid+"/report?from=2026-05-08&to=2026-05-10", ownerKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report = %d: %s", rec.Code, rec.Body.String())
	}
	var report ReportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Total.Expected != 3 || report.Total.Taken != 1 || report.Medications[rx] != "Losartana 5 mg" {
		t.Errorf("unexpected report %+v", report)
	}

	if rec := api.do(http.MethodGet, "/patients/"+pid+"/adherence?from=2026-05-11&to=2026-05-01", ownerKey, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("inverted range = %d", rec.Code)
	}
}

func TestSchedule(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")
	a := api.medication("Losartana")
	b := api.medication("Metformina")
	api.create("/prescriptions", prescriptionBody(pid, a, "20:00", "08:00"), http.StatusCreated, nil)
	api.create("/prescriptions", prescriptionBody(pid, b, "12:00"), http.StatusCreated, nil)

	rec := api.do(http.MethodGet, "/patients/"+pid+"/schedule?from=2026-05-10&to=2026-05-11", ownerKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule = %d: %s", rec.Code, rec.Body.String())
	}
	var doses []ScheduledDose
	if err := json.Unmarshal(rec.Body.Bytes(), &doses); err != nil {
		t.Fatal(err)
	}
	if len(doses) != 6 {
		t.Fatalf("got %d doses, want 6", len(doses))
	}
	order := []string{"08:00", "12:00", "20:00", "08:00", "12:00", "20:00"}
	for i, d := range doses {
		if d.Time.String() != order[i] {
			t.Errorf("dose %d at %s, want %s", i, d.Time, order[i])
		}
	}
}

func TestSharesGrantAccess(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")

	if rec := api.do(http.MethodGet, "/patients/"+pid, caregiverKey, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("unshared read = %d, want 403", rec.Code)
	}

	var share struct{ ID string }
	api.create("/patients/"+pid+"/shares", map[string]any{"grantee_account_id": "acct-caregiver", "access": "read"}, http.StatusCreated, &share)

	if rec := api.do(http.MethodGet, "/patients/"+pid, caregiverKey, nil); rec.Code != http.StatusForbidden {
		t.Errorf("invited share must not grant access yet, got %d", rec.Code)
	}

	path := "/patients/" + pid + "/shares/" + share.ID
	if rec := api.do(http.MethodPut, path, strangerKey, map[string]any{"status": "accepted"}); rec.Code != http.StatusForbidden {
		t.Errorf("stranger accept = %d", rec.Code)
	}
	if rec := api.do(http.MethodPut, path, caregiverKey, map[string]any{"status": "accepted"}); rec.Code != http.StatusOK {
		t.Fatalf("accept = %d: %s", rec.Code, rec.Body.String())
	}

	if rec := api.do(http.MethodGet, "/patients/"+pid, caregiverKey, nil); rec.Code != http.StatusOK {
		t.Errorf("accepted read = %d", rec.Code)
	}
	if rec := api.do(http.MethodPut, "/patients/"+pid, caregiverKey, map[string]any{"name": "X"}); rec.Code != http.StatusForbidden {
		t.Errorf("read share must not allow writes, got %d", rec.Code)
	}

	var list []map[string]any
	rec := api.do(http.MethodGet, "/patients", caregiverKey, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("caregiver should see the shared patient: %s", rec.Body.String())
	}
}

func TestListAlerts(t *testing.T) {
	api := newTestAPI(t)
	pid := api.patient("Ana")
	_, err := api.store.Alerts.InsertIfAbsent(t.Context(), &alert.Entry{
		ID:             "a1",
		PrescriptionID: "rx",
		PatientID:      pid,
		Date:           schedule.NewDate(2026, 5, 10),
		Time:           schedule.MustClockTime("08:00"),
		Recipients:     []string{"acct-owner"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := api.do(http.MethodGet, "/patients/"+pid+"/alerts", ownerKey, nil)
	var list []alert.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("expected one alert: %d %s", rec.Code, rec.Body.String())
	}
}

func TestNotFoundAndUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	if rec := api.do(http.MethodGet, "/patients/missing", ownerKey, nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing patient = %d", rec.Code)
	}
	if rec := api.do(http.MethodGet, "/prescriptions/missing", ownerKey, nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing prescription = %d", rec.Code)
	}
	api.create("/patients", map[string]any{"name": "Ana", "unknown": 1}, http.StatusBadRequest, nil)
	api.create("/patients", map[string]any{"name": "Ana", "time_zone": "Mars/Base"}, http.StatusBadRequest, nil)
}
