package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"kiosk/internal/auth"
	"kiosk/internal/history"
	"kiosk/internal/presence"
	"kiosk/internal/store"
	"kiosk/internal/visitors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, adminPassword string) (*gin.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := presence.NewService(mem, presence.Config{}, nil)

	h := New(Config{
		Presences:     svc,
		Archiver:      history.NewArchiver(mem, 0, nil),
		History:       history.NewService(mem, 0, nil),
		Exporter:      history.NewExporter(mem, t.TempDir(), nil),
		Visitors:      visitors.NewService(mem, nil),
		AdminPassword: adminPassword,
		JWTIssuer:     "kiosk-test",
		JWTSigningKey: "test-signing-key",
		AccessTTL:     time.Hour,
	}, nil)

	r := gin.New()
	h.RegisterRoutes(r, auth.AdminAuth("test-signing-key", "kiosk-test", adminPassword != ""))
	return r, mem
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func TestCreatePresenceRejectsMissingFields(t *testing.T) {
	r, _ := newTestRouter(t, "")
	w, body := doJSON(t, r, http.MethodPost, "/presences", gin.H{"type": "adherent"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body["success"] != false || body["error"] != "Champs requis: type, nom, prenom" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCreatePresenceDuplicateShape(t *testing.T) {
	r, _ := newTestRouter(t, "")
	in := gin.H{"type": "adherent", "nom": "Durand", "prenom": "Alice"}

	w, first := doJSON(t, r, http.MethodPost, "/presences", in)
	if w.Code != http.StatusOK {
		t.Fatalf("first create: %d %s", w.Code, w.Body)
	}
	if _, dup := first["duplicate"]; dup {
		t.Fatalf("first create must not be a duplicate: %v", first)
	}

	w, second := doJSON(t, r, http.MethodPost, "/presences", in)
	if w.Code != http.StatusOK {
		t.Fatalf("second create: %d", w.Code)
	}
	if second["duplicate"] != true {
		t.Fatalf("expected duplicate flag: %v", second)
	}
	firstID := first["presence"].(map[string]any)["id"]
	secondID := second["presence"].(map[string]any)["id"]
	if firstID != secondID {
		t.Fatalf("duplicate must echo the original record: %v vs %v", firstID, secondID)
	}

	w, list := doJSON(t, r, http.MethodGet, "/presences", nil)
	if w.Code != http.StatusOK || list["count"].(float64) != 1 {
		t.Fatalf("live list should hold one record: %v", list)
	}
}

func TestValidateUnknownPresence(t *testing.T) {
	r, _ := newTestRouter(t, "")
	w, body := doJSON(t, r, http.MethodPost, "/presences/unknown-id/valider", gin.H{"montant": 7})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if body["error"] != "Présence non trouvée" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestValidateWithEmptyBody(t *testing.T) {
	r, _ := newTestRouter(t, "")
	_, created := doJSON(t, r, http.MethodPost, "/presences", gin.H{"type": "adherent", "nom": "Durand", "prenom": "Alice"})
	id := created["presence"].(map[string]any)["id"].(string)

	req := httptest.NewRequest(http.MethodPost, "/presences/"+id+"/valider", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("empty body must be tolerated, got %d %s", w.Code, w.Body)
	}
}

func TestDeleteIsAlwaysSuccess(t *testing.T) {
	r, _ := newTestRouter(t, "")
	w, body := doJSON(t, r, http.MethodDelete, "/presences/never-existed", nil)
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("delete of unknown id: %d %v", w.Code, body)
	}
}

func TestArchiveEmptyDayIsSoftFailure(t *testing.T) {
	r, _ := newTestRouter(t, "")
	w, body := doJSON(t, r, http.MethodPost, "/presences/archive", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("soft failure keeps 200, got %d", w.Code)
	}
	if body["success"] != false || body["archived"].(float64) != 0 || body["error"] != "No data to archive" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestArchiveThenHistory(t *testing.T) {
	r, _ := newTestRouter(t, "")
	doJSON(t, r, http.MethodPost, "/presences", gin.H{"type": "adherent", "nom": "Dupont", "prenom": "Jean"})

	w, body := doJSON(t, r, http.MethodPost, "/presences/archive", nil)
	if w.Code != http.StatusOK || body["success"] != true || body["archived"].(float64) != 1 {
		t.Fatalf("archive: %d %v", w.Code, body)
	}

	today := time.Now().Format("2006-01-02")
	w, day := doJSON(t, r, http.MethodGet, "/presences/history/"+today, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history date: %d", w.Code)
	}
	presences := day["presences"].([]any)
	if len(presences) != 1 {
		t.Fatalf("expected 1 archived presence, got %d", len(presences))
	}
	got := presences[0].(map[string]any)
	if got["nom"] != "Dupont" || got["status"] != "pending" {
		t.Fatalf("unexpected archived record: %v", got)
	}

	w, dates := doJSON(t, r, http.MethodGet, "/presences/history", nil)
	if w.Code != http.StatusOK || len(dates["dates"].([]any)) != 1 {
		t.Fatalf("history dates: %d %v", w.Code, dates)
	}
}

func TestHistoryUnknownDate(t *testing.T) {
	r, _ := newTestRouter(t, "")
	w, body := doJSON(t, r, http.MethodGet, "/presences/history/1999-01-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := body["presences"].([]any); len(got) != 0 {
		t.Fatalf("unknown date should be empty, got %v", got)
	}
}

func TestSeasonsAlwaysIncludeCurrent(t *testing.T) {
	r, _ := newTestRouter(t, "")
	w, body := doJSON(t, r, http.MethodGet, "/admin/seasons", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("seasons: %d", w.Code)
	}
	seasons := body["seasons"].([]any)
	if len(seasons) != 1 {
		t.Fatalf("empty archive still has the current season: %v", seasons)
	}
}

func TestQuoteTarif(t *testing.T) {
	r, _ := newTestRouter(t, "")

	birth := time.Now().AddDate(-70, 0, 0).Format("2006-01-02")
	w, body := doJSON(t, r, http.MethodGet, "/tarifs/adherent?dateNaissance="+birth, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("quote: %d %s", w.Code, w.Body)
	}
	tarif := body["tarif"].(map[string]any)
	if tarif["categorie"] != "sénior" || tarif["montant"].(float64) != presence.DefaultMemberRates().Senior {
		t.Fatalf("unexpected member quote: %v", tarif)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/tarifs/guest", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown type should be rejected, got %d", w.Code)
	}
}

func TestFindVisitorRequiresIdentity(t *testing.T) {
	r, _ := newTestRouter(t, "")
	w, _ := doJSON(t, r, http.MethodGet, "/visitors/find?nom=Martin", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without prenom, got %d", w.Code)
	}

	w, body := doJSON(t, r, http.MethodGet, "/visitors/find?nom=Martin&prenom=Paul", nil)
	if w.Code != http.StatusOK || body["found"] != false {
		t.Fatalf("unknown visitor: %d %v", w.Code, body)
	}
}

func TestAdminAuthDisabledByDefault(t *testing.T) {
	r, _ := newTestRouter(t, "")
	w, body := doJSON(t, r, http.MethodGet, "/admin/stats", nil)
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("admin routes open without password: %d %v", w.Code, body)
	}

	w, login := doJSON(t, r, http.MethodPost, "/admin/login", nil)
	if w.Code != http.StatusOK || login["auth"] != "disabled" {
		t.Fatalf("login with auth disabled: %d %v", w.Code, login)
	}
}

func TestAdminAuthEnforcedWhenConfigured(t *testing.T) {
	r, _ := newTestRouter(t, "s3cret")

	w, _ := doJSON(t, r, http.MethodGet, "/admin/stats", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/admin/login", gin.H{"password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}

	w, login := doJSON(t, r, http.MethodPost, "/admin/login", gin.H{"password": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body)
	}
	token := login["token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d %s", rec.Code, rec.Body)
	}
}
