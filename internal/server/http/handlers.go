package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/model"
	"github.com/and161185/notekeeper/internal/service"
)

// --- DTOs ---

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

type categoryRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

type categoryResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Protected bool      `json:"protected"`
	NoteCount int64     `json:"note_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// noteRequest distinguishes an absent category_id from an explicit null.
type noteRequest struct {
	Title      *string         `json:"title"`
	Content    *string         `json:"content"`
	CategoryID json.RawMessage `json:"category_id"`
}

type noteResponse struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CategoryID *int64    `json:"category_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type noteListItem struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	ContentPreview string    `json:"content_preview"`
	CategoryID     *int64    `json:"category_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type notePage struct {
	Count    int64          `json:"count"`
	NextPage *int           `json:"next_page"`
	Results  []noteListItem `json:"results"`
}

func toUser(u *model.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

func toTokens(p model.TokenPair) tokenResponse {
	return tokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: "Bearer"}
}

func toCategory(c *model.Category) categoryResponse {
	return categoryResponse{
		ID: c.ID, Name: c.Name, Color: c.Color, Protected: c.Protected,
		NoteCount: c.NoteCount, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func toNote(n *model.Note) noteResponse {
	return noteResponse{
		ID: n.ID, Title: n.Title, Content: n.Content, CategoryID: n.CategoryID,
		CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt,
	}
}

// categoryField decodes an optional category_id: set reports presence, id is nil for null.
func categoryField(raw json.RawMessage) (id *int64, set bool, err error) {
	if len(raw) == 0 {
		return nil, false, nil
	}
	if string(raw) == "null" {
		return nil, true, nil
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, errs.Validationf("category_id must be an integer or null")
	}
	return &v, true, nil
}

func principal(r *http.Request) *model.User {
	u, _ := PrincipalFromCtx(r.Context())
	return u
}

func int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		// an id that cannot exist is reported like any other missing row
		return 0, errs.ErrNotFound
	}
	return v, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errs.ErrNotFound
	}
	return id, nil
}

// --- Auth ---

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	u, err := s.svc.Auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUser(u))
}

func (s *Server) signin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	pair, err := s.svc.Auth.Signin(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokens(pair))
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	pair, err := s.svc.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokens(pair))
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if err := s.svc.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUser(principal(r)))
}

// --- Categories ---

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Categories.List(r.Context(), principal(r).ID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make([]categoryResponse, 0, len(list))
	for i := range list {
		out = append(out, toCategory(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var name, color string
	if req.Name != nil {
		name = *req.Name
	}
	if req.Color != nil {
		color = *req.Color
	}
	c, err := s.svc.Categories.Create(r.Context(), principal(r).ID, name, color)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategory(c))
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	c, err := s.svc.Categories.Get(r.Context(), principal(r).ID, id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategory(c))
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req categoryRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	c, err := s.svc.Categories.Update(r.Context(), principal(r).ID, id, model.CategoryPatch{Name: req.Name, Color: req.Color})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategory(c))
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if err := s.svc.Categories.Delete(r.Context(), principal(r).ID, id); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Notes ---

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errs.Validationf("%s must be a positive integer", name)
	}
	return n, nil
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	var q service.NoteQuery
	var err error
	if q.Page, err = queryInt(r, "page"); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if q.PageSize, err = queryInt(r, "page_size"); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if v := r.URL.Query().Get("category_id"); v != "" {
		id, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			writeError(w, r, s.log, errs.Validationf("category_id must be an integer"))
			return
		}
		q.CategoryID = &id
	}
	q.Search = r.URL.Query().Get("search")

	list, err := s.svc.Notes.List(r.Context(), principal(r).ID, q)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := notePage{Count: list.Total, Results: make([]noteListItem, 0, len(list.Notes))}
	if list.HasNext() {
		next := list.Page + 1
		out.NextPage = &next
	}
	for _, n := range list.Notes {
		out.Results = append(out.Results, noteListItem{
			ID: n.ID, Title: n.Title, ContentPreview: service.Preview(n.Content),
			CategoryID: n.CategoryID, UpdatedAt: n.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	cat, _, err := categoryField(req.CategoryID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	in := model.NoteInput{CategoryID: cat}
	if req.Title != nil {
		in.Title = *req.Title
	}
	if req.Content != nil {
		in.Content = *req.Content
	}
	n, err := s.svc.Notes.Create(r.Context(), principal(r).ID, in)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNote(n))
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	n, err := s.svc.Notes.Get(r.Context(), principal(r).ID, id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toNote(n))
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req noteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	cat, set, err := categoryField(req.CategoryID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	p := model.NotePatch{Title: req.Title, Content: req.Content, SetCategory: set, CategoryID: cat}
	n, err := s.svc.Notes.Update(r.Context(), principal(r).ID, id, p)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toNote(n))
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if err := s.svc.Notes.Delete(r.Context(), principal(r).ID, id); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
