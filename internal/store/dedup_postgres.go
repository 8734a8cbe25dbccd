package store

import (
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements DedupRepo.
var _ DedupRepo = (*PostgresStore)(nil)

func (s *PostgresStore) RecordInbound(messageID, sessionID string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO inbound_dedup (message_id, session_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		messageID, sessionID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(
		`UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`,
		time.Now(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ForgetInbound(messageID string) error {
	if _, err := s.db.Exec(`DELETE FROM inbound_dedup WHERE message_id = $1`, messageID); err != nil {
		return fmt.Errorf("forget inbound failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) PruneInbound(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM inbound_dedup WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune inbound failed: %w", err)
	}
	return res.RowsAffected()
}
