package store

import (
	"database/sql"
	"time"
)

// Binding links a student to one guardian chat destination.
type Binding struct {
	StudentID string
	ChatID    int64
	CreatedAt time.Time
}

// BindingRepository provides access to guardian bindings.
type BindingRepository struct {
	db *sql.DB
}

// Bindings returns the binding repository for this store.
func (s *Store) Bindings() *BindingRepository {
	return &BindingRepository{db: s.db}
}

// Lookup returns the chat destinations of a student in the order they were bound.
func (r *BindingRepository) Lookup(studentID string) ([]int64, error) {
	rows, err := r.db.Query(
		`SELECT chat_id FROM guardian_bindings WHERE student_id = ? ORDER BY rowid`,
		NormalizeStudentID(studentID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		chats = append(chats, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return chats, nil
}

// Bind adds chatID to the student's destinations. Binding twice is a no-op;
// created reports whether a new row was written.
func (r *BindingRepository) Bind(studentID string, chatID int64) (created bool, err error) {
	return bind(r.db, NormalizeStudentID(studentID), chatID)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func bind(e execer, studentID string, chatID int64) (bool, error) {
	result, err := e.Exec(
		`INSERT OR IGNORE INTO guardian_bindings (student_id, chat_id, created_at) VALUES (?, ?, ?)`,
		studentID, chatID, time.Now(),
	)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Unbind removes chatID from the student's destinations. A student with no
// destinations left has no rows and disappears from List and Snapshot.
// Returns ErrNotFound when the binding does not exist.
func (r *BindingRepository) Unbind(studentID string, chatID int64) error {
	result, err := r.db.Exec(
		`DELETE FROM guardian_bindings WHERE student_id = ? AND chat_id = ?`,
		NormalizeStudentID(studentID), chatID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ListByChat returns the students a chat is bound to, in binding order.
func (r *BindingRepository) ListByChat(chatID int64) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT student_id FROM guardian_bindings WHERE chat_id = ? ORDER BY rowid`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		students = append(students, sid)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return students, nil
}

// List returns every binding ordered by student, then binding order.
func (r *BindingRepository) List() ([]*Binding, error) {
	rows, err := r.db.Query(
		`SELECT student_id, chat_id, created_at FROM guardian_bindings ORDER BY student_id, rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []*Binding
	for rows.Next() {
		b := &Binding{}
		if err := rows.Scan(&b.StudentID, &b.ChatID, &b.CreatedAt); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bindings, nil
}

// Snapshot returns all bindings as a student → destinations map.
func (r *BindingRepository) Snapshot() (map[string][]int64, error) {
	bindings, err := r.List()
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string][]int64)
	for _, b := range bindings {
		snapshot[b.StudentID] = append(snapshot[b.StudentID], b.ChatID)
	}
	return snapshot, nil
}
