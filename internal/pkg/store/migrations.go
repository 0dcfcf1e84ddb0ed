package store

// Each migration is additive and idempotent. The base schema in schema.sql
// already creates every table with IF NOT EXISTS, so migrations only carry
// statements that alter tables created by older versions.
var migrations = map[int][]string{
	1: {}, // base schema
}

const schemaVersion = 1

func (s *Store) migrate() error {
	var current int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current)
	if err != nil {
		return err
	}

	for v := current + 1; v <= schemaVersion; v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}

		for _, stmt := range migrations[v] {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				s.logger.Error("migration failed", "version", v, "err", err.Error())
				return err
			}
		}

		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, v); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}

		s.logger.Info("applied schema migration", "version", v)
	}

	return nil
}
