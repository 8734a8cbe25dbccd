package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/PDIMentor/internal/models"
)

// encodeSession serializes a session to the JSON document stored in the data column.
func encodeSession(st *models.SessionState) (string, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to encode session %s: %w", st.ID, err)
	}
	return string(b), nil
}

func decodeSession(data string) (*models.SessionState, error) {
	var st models.SessionState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if st.Configs == nil {
		st.Configs = make(map[string]string)
	}
	return &st, nil
}

// scanIDs drains rows of a single id column and closes them.
func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return ids, nil
}
