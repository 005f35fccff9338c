package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ayusman/abhinaya/internal/gesture"
)

// Binding ties a committed gesture to a hook action. An empty Entity
// matches every entity.
type Binding struct {
	ID        string          `json:"id"`
	Gesture   gesture.Type    `json:"gesture"`
	Entity    gesture.Entity  `json:"entity,omitempty"`
	Hook      string          `json:"hook"`
	Action    string          `json:"action"`
	Config    json.RawMessage `json:"config,omitempty"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Matches reports whether the binding applies to an event.
func (b *Binding) Matches(e gesture.Event) bool {
	return b.Enabled && b.Gesture == e.Type && (b.Entity == "" || b.Entity == e.Entity)
}

// BindingRepository provides CRUD operations for bindings.
type BindingRepository struct {
	db *sql.DB
}

// Bindings returns the binding repository for this store.
func (s *Store) Bindings() *BindingRepository {
	return &BindingRepository{db: s.db}
}

const bindingColumns = `id, gesture, entity, hook_name, action_name, config, enabled, created_at`

// Create inserts a new binding.
func (r *BindingRepository) Create(b *Binding) error {
	b.CreatedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO bindings (`+bindingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.Gesture), string(b.Entity), b.Hook, b.Action, configText(b.Config), b.Enabled, b.CreatedAt,
	)
	return err
}

// GetByID retrieves a binding by its ID.
func (r *BindingRepository) GetByID(id string) (*Binding, error) {
	b, err := scanBinding(r.db.QueryRow(`SELECT `+bindingColumns+` FROM bindings WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// List retrieves all bindings, newest first.
func (r *BindingRepository) List() ([]*Binding, error) {
	return r.query(`SELECT ` + bindingColumns + ` FROM bindings ORDER BY created_at DESC`)
}

// ListByGesture retrieves the enabled bindings for a gesture type.
func (r *BindingRepository) ListByGesture(t gesture.Type) ([]*Binding, error) {
	return r.query(
		`SELECT `+bindingColumns+` FROM bindings WHERE gesture = ? AND enabled = 1 ORDER BY created_at`,
		string(t),
	)
}

func (r *BindingRepository) query(q string, args ...any) ([]*Binding, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []*Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bindings, nil
}

// Update replaces an existing binding.
func (r *BindingRepository) Update(b *Binding) error {
	result, err := r.db.Exec(
		`UPDATE bindings SET gesture = ?, entity = ?, hook_name = ?, action_name = ?, config = ?, enabled = ?
		 WHERE id = ?`,
		string(b.Gesture), string(b.Entity), b.Hook, b.Action, configText(b.Config), b.Enabled, b.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// Delete removes a binding by its ID.
func (r *BindingRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM bindings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBinding(row rowScanner) (*Binding, error) {
	b := &Binding{}
	var typ, entity, config string
	var enabled int

	if err := row.Scan(&b.ID, &typ, &entity, &b.Hook, &b.Action, &config, &enabled, &b.CreatedAt); err != nil {
		return nil, err
	}

	b.Gesture = gesture.Type(typ)
	b.Entity = gesture.Entity(entity)
	b.Config = json.RawMessage(config)
	b.Enabled = enabled != 0
	return b, nil
}

func configText(c json.RawMessage) string {
	if len(c) == 0 {
		return "{}"
	}
	return string(c)
}
