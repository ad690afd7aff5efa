package store

import (
	"database/sql"
	"encoding/json"

	idxerrors "github.com/openclaw/memindex/internal/errors"
)

// GetFingerprint reads the active index fingerprint, or ok=false if none
// has been written yet.
func (s *Store) GetFingerprint() (Fingerprint, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, MetaKey).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return Fingerprint{}, false, nil
		}
		return Fingerprint{}, false, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	var fp Fingerprint
	if err := json.Unmarshal([]byte(raw), &fp); err != nil {
		return Fingerprint{}, false, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	return fp, true, nil
}

// SetFingerprint writes the active index fingerprint, the last step of
// a successful sync.
func (s *Store) SetFingerprint(fp Fingerprint) error {
	raw, err := json.Marshal(fp)
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		MetaKey, string(raw),
	)
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	return nil
}
