package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"openclaw/internal/clawerr"
)

// Contact is a person in the operator's circle.
type Contact struct {
	ID            int64
	Name          string
	Relationship  string
	Email         string
	Phone         string
	Notes         string
	LastContacted *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AddContact inserts a contact.
func (s *Store) AddContact(ctx context.Context, c Contact) (int64, error) {
	if c.Name == "" {
		return 0, clawerr.NewValidation("contact name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (name, relationship, email, phone, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Relationship, c.Email, c.Phone, c.Notes)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "add contact", Err: err}
	}
	return res.LastInsertId()
}

// GetContact loads one contact by id.
func (s *Store) GetContact(ctx context.Context, id int64) (*Contact, error) {
	var c Contact
	var relationship, email, phone sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, relationship, email, phone, notes,
		        last_contacted, created_at, updated_at
		 FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &relationship, &email, &phone, &c.Notes,
			&c.LastContacted, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &clawerr.NotFoundError{Entity: "contact", ID: id}
	}
	if err != nil {
		return nil, &clawerr.StorageError{Op: "get contact", Err: err}
	}
	c.Relationship = relationship.String
	c.Email = email.String
	c.Phone = phone.String
	return &c, nil
}

// SearchContacts matches name or notes case-insensitively.
func (s *Store) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, relationship, email, phone, notes,
		        last_contacted, created_at, updated_at
		 FROM contacts
		 WHERE name LIKE ? OR notes LIKE ?
		 ORDER BY name`, "%"+query+"%", "%"+query+"%")
	if err != nil {
		return nil, &clawerr.StorageError{Op: "search contacts", Err: err}
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		var relationship, email, phone sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &relationship, &email, &phone, &c.Notes,
			&c.LastContacted, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Relationship = relationship.String
		c.Email = email.String
		c.Phone = phone.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// TouchContact records that the operator was just in touch.
func (s *Store) TouchContact(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET last_contacted = CURRENT_TIMESTAMP,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, id)
	if err != nil {
		return &clawerr.StorageError{Op: "touch contact", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &clawerr.NotFoundError{Entity: "contact", ID: id}
	}
	return nil
}
