// Package repotest provides in-memory repositories for tests of packages built on
// internal/repository.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/model"
	"github.com/and161185/notekeeper/internal/repository"
)

// Store holds users, categories and notes in memory with the same ownership and
// uniqueness rules as the Postgres schema.
type Store struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*model.User
	categories map[int64]*model.Category
	notes      map[uuid.UUID]*model.Note
	nextCat    int64
	clock      time.Time

	// Err, when set, is returned by every call.
	Err error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:      map[uuid.UUID]*model.User{},
		categories: map[int64]*model.Category{},
		notes:      map[uuid.UUID]*model.Note{},
		clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp so orderings are deterministic.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s} }

// Categories returns the category repository view.
func (s *Store) Categories() *Categories { return &Categories{s} }

// Notes returns the note repository view.
func (s *Store) Notes() *Notes { return &Notes{s} }

// Scope returns the owner-scoped guard over this store.
func (s *Store) Scope(owner uuid.UUID) *repository.Scoped {
	return repository.Scope(owner, s.Categories(), s.Notes())
}

// Users implements repository.UserRepository.
type Users struct{ s *Store }

var _ repository.UserRepository = (*Users)(nil)

func (u *Users) Create(_ context.Context, usr *model.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if u.s.Err != nil {
		return u.s.Err
	}
	for _, existing := range u.s.users {
		if existing.Email == usr.Email {
			return errs.ErrAlreadyExists
		}
	}
	now := u.s.tick()
	usr.CreatedAt, usr.UpdatedAt = now, now
	cp := *usr
	u.s.users[usr.ID] = &cp
	return nil
}

func (u *Users) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if u.s.Err != nil {
		return nil, u.s.Err
	}
	usr, ok := u.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *usr
	return &cp, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if u.s.Err != nil {
		return nil, u.s.Err
	}
	for _, usr := range u.s.users {
		if usr.Email == email {
			cp := *usr
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

// SetActive flips a user's active flag.
func (u *Users) SetActive(id uuid.UUID, active bool) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if usr, ok := u.s.users[id]; ok {
		usr.Active = active
	}
}

// Categories implements repository.CategoryRepository.
type Categories struct{ s *Store }

var _ repository.CategoryRepository = (*Categories)(nil)

func (c *Categories) Create(_ context.Context, cat *model.Category) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.Err != nil {
		return c.s.Err
	}
	for _, existing := range c.s.categories {
		if existing.OwnerID == cat.OwnerID && existing.Name == cat.Name {
			return errs.ErrAlreadyExists
		}
	}
	c.s.nextCat++
	now := c.s.tick()
	cat.ID, cat.CreatedAt, cat.UpdatedAt = c.s.nextCat, now, now
	cp := *cat
	c.s.categories[cat.ID] = &cp
	return nil
}

func (c *Categories) get(owner uuid.UUID, id int64) (*model.Category, error) {
	cat, ok := c.s.categories[id]
	if !ok || cat.OwnerID != owner {
		return nil, errs.ErrNotFound
	}
	return cat, nil
}

func (c *Categories) Get(_ context.Context, owner uuid.UUID, id int64) (*model.Category, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.Err != nil {
		return nil, c.s.Err
	}
	cat, err := c.get(owner, id)
	if err != nil {
		return nil, err
	}
	cp := *cat
	return &cp, nil
}

func (c *Categories) List(_ context.Context, owner uuid.UUID) ([]model.Category, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.Err != nil {
		return nil, c.s.Err
	}
	var out []model.Category
	for _, cat := range c.s.categories {
		if cat.OwnerID == owner {
			out = append(out, *cat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Categories) Update(_ context.Context, owner uuid.UUID, id int64, p model.CategoryPatch) (*model.Category, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.Err != nil {
		return nil, c.s.Err
	}
	cat, err := c.get(owner, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		for _, other := range c.s.categories {
			if other.ID != id && other.OwnerID == owner && other.Name == *p.Name {
				return nil, errs.ErrAlreadyExists
			}
		}
		cat.Name = *p.Name
	}
	if p.Color != nil {
		cat.Color = *p.Color
	}
	cat.UpdatedAt = c.s.tick()
	cp := *cat
	return &cp, nil
}

func (c *Categories) Delete(_ context.Context, owner uuid.UUID, id int64) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.Err != nil {
		return c.s.Err
	}
	cat, err := c.get(owner, id)
	if err != nil {
		return err
	}
	if cat.Protected {
		return errs.ErrProtected
	}
	for _, n := range c.s.notes {
		if n.CategoryID != nil && *n.CategoryID == id {
			n.CategoryID = nil
		}
	}
	delete(c.s.categories, id)
	return nil
}

func (c *Categories) Default(_ context.Context, owner uuid.UUID) (*model.Category, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.Err != nil {
		return nil, c.s.Err
	}
	var best *model.Category
	for _, cat := range c.s.categories {
		if cat.OwnerID != owner {
			continue
		}
		if best == nil ||
			(cat.Protected && !best.Protected) ||
			(cat.Protected == best.Protected && cat.ID > best.ID) {
			best = cat
		}
	}
	if best == nil {
		return nil, errs.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

// Notes implements repository.NoteRepository.
type Notes struct{ s *Store }

var _ repository.NoteRepository = (*Notes)(nil)

func (n *Notes) categoryExists(id *int64) bool {
	if id == nil {
		return true
	}
	_, ok := n.s.categories[*id]
	return ok
}

func (n *Notes) Create(_ context.Context, note *model.Note) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if n.s.Err != nil {
		return n.s.Err
	}
	if !n.categoryExists(note.CategoryID) {
		return repository.ErrCategoryMissing
	}
	now := n.s.tick()
	note.CreatedAt, note.UpdatedAt = now, now
	cp := *note
	n.s.notes[note.ID] = &cp
	return nil
}

func (n *Notes) Get(_ context.Context, owner, id uuid.UUID) (*model.Note, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if n.s.Err != nil {
		return nil, n.s.Err
	}
	note, ok := n.s.notes[id]
	if !ok || note.OwnerID != owner {
		return nil, errs.ErrNotFound
	}
	cp := *note
	return &cp, nil
}

func (n *Notes) List(_ context.Context, owner uuid.UUID, f model.NoteFilter) (model.NotePage, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if n.s.Err != nil {
		return model.NotePage{}, n.s.Err
	}
	search := strings.ToLower(f.Search)
	var all []model.Note
	for _, note := range n.s.notes {
		if note.OwnerID != owner {
			continue
		}
		if f.CategoryID != nil && (note.CategoryID == nil || *note.CategoryID != *f.CategoryID) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(note.Title), search) &&
			!strings.Contains(strings.ToLower(note.Content), search) {
			continue
		}
		all = append(all, *note)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	page := model.NotePage{Total: int64(len(all))}
	if f.Offset < len(all) {
		end := len(all)
		if f.Limit > 0 && f.Offset+f.Limit < end {
			end = f.Offset + f.Limit
		}
		page.Notes = all[f.Offset:end]
	}
	return page, nil
}

func (n *Notes) Update(_ context.Context, owner, id uuid.UUID, p model.NotePatch) (*model.Note, *int64, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if n.s.Err != nil {
		return nil, nil, n.s.Err
	}
	note, ok := n.s.notes[id]
	if !ok || note.OwnerID != owner {
		return nil, nil, errs.ErrNotFound
	}
	if p.SetCategory && !n.categoryExists(p.CategoryID) {
		return nil, nil, repository.ErrCategoryMissing
	}
	prev := note.CategoryID
	if p.Title != nil {
		note.Title = *p.Title
	}
	if p.Content != nil {
		note.Content = *p.Content
	}
	if p.SetCategory {
		note.CategoryID = p.CategoryID
	}
	note.UpdatedAt = n.s.tick()
	cp := *note
	return &cp, prev, nil
}

func (n *Notes) Delete(_ context.Context, owner, id uuid.UUID) (*int64, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if n.s.Err != nil {
		return nil, n.s.Err
	}
	note, ok := n.s.notes[id]
	if !ok || note.OwnerID != owner {
		return nil, errs.ErrNotFound
	}
	delete(n.s.notes, id)
	return note.CategoryID, nil
}

func (n *Notes) CountNotes(_ context.Context, categoryID int64) (int64, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if n.s.Err != nil {
		return 0, n.s.Err
	}
	if _, ok := n.s.categories[categoryID]; !ok {
		return 0, errs.ErrNotFound
	}
	var count int64
	for _, note := range n.s.notes {
		if note.CategoryID != nil && *note.CategoryID == categoryID {
			count++
		}
	}
	return count, nil
}
