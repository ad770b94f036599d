package db

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS applications (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  sector TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  workflow_stage TEXT NOT NULL DEFAULT 'submitted',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS judges (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL,
  email TEXT NOT NULL DEFAULT '',
  expertise_sectors TEXT NOT NULL DEFAULT '[]',
  is_active INTEGER NOT NULL DEFAULT 1,
  assigned_applications_count INTEGER NOT NULL DEFAULT 0,
  max_applications_per_judge INTEGER NOT NULL DEFAULT 10,
  total_scores_submitted INTEGER NOT NULL DEFAULT 0,
  total_applications_reviewed INTEGER NOT NULL DEFAULT 0,
  average_score_given REAL NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  CHECK (assigned_applications_count >= 0),
  CHECK (assigned_applications_count <= max_applications_per_judge)
);

CREATE TABLE IF NOT EXISTS judge_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  judge_id TEXT NOT NULL REFERENCES judges(id),
  application_id TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  score_submitted REAL NOT NULL,
  scored_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS judge_history_judge_idx ON judge_history (judge_id, scored_at);

CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
  judge_id TEXT NOT NULL REFERENCES judges(id),
  status TEXT NOT NULL,
  assigned_at INTEGER NOT NULL,
  started_at INTEGER,
  completed_at INTEGER,
  review_notes TEXT NOT NULL DEFAULT '',
  time_spent_minutes INTEGER NOT NULL DEFAULT 0,
  conflict_declared INTEGER NOT NULL DEFAULT 0,
  conflict_reason TEXT NOT NULL DEFAULT '',
  scoring_round INTEGER NOT NULL DEFAULT 1,
  reassigned_by TEXT NOT NULL DEFAULT '',
  reassignment_reason TEXT NOT NULL DEFAULT '',
  reassigned_at INTEGER,
  UNIQUE (application_id, judge_id)
);
CREATE INDEX IF NOT EXISTS assignments_judge_status_idx ON assignments (judge_id, status);

CREATE TABLE IF NOT EXISTS application_locks (
  id TEXT PRIMARY KEY,
  application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
  judge_id TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  locked_at INTEGER NOT NULL,
  expires_at INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  lock_type TEXT NOT NULL,
  session_id TEXT NOT NULL DEFAULT '',
  last_activity INTEGER NOT NULL,
  released_at INTEGER,
  release_reason TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS application_locks_one_active
  ON application_locks (application_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS application_locks_expiry_idx ON application_locks (is_active, expires_at);

CREATE TABLE IF NOT EXISTS scores (
  id TEXT PRIMARY KEY,
  application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
  assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
  judge_id TEXT NOT NULL REFERENCES judges(id),
  scheme TEXT NOT NULL,
  criteria_json TEXT NOT NULL,
  total_score REAL NOT NULL,
  weighted_score REAL NOT NULL,
  grade TEXT NOT NULL,
  comments TEXT NOT NULL DEFAULT '',
  review_notes TEXT NOT NULL DEFAULT '',
  time_spent_minutes INTEGER NOT NULL DEFAULT 0,
  scored_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  UNIQUE (application_id, judge_id)
);
CREATE INDEX IF NOT EXISTS scores_judge_idx ON scores (judge_id);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  judge_id TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  actor TEXT NOT NULL DEFAULT '',
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_key_idx ON audit_log (key, seq);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS applications (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  sector TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  workflow_stage TEXT NOT NULL DEFAULT 'submitted',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS judges (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL,
  email TEXT NOT NULL DEFAULT '',
  expertise_sectors TEXT NOT NULL DEFAULT '[]',
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  assigned_applications_count INTEGER NOT NULL DEFAULT 0,
  max_applications_per_judge INTEGER NOT NULL DEFAULT 10,
  total_scores_submitted INTEGER NOT NULL DEFAULT 0,
  total_applications_reviewed INTEGER NOT NULL DEFAULT 0,
  average_score_given DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  CHECK (assigned_applications_count >= 0),
  CHECK (assigned_applications_count <= max_applications_per_judge)
);

CREATE TABLE IF NOT EXISTS judge_history (
  id BIGSERIAL PRIMARY KEY,
  judge_id TEXT NOT NULL REFERENCES judges(id),
  application_id TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  score_submitted DOUBLE PRECISION NOT NULL,
  scored_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS judge_history_judge_idx ON judge_history (judge_id, scored_at);

CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
  judge_id TEXT NOT NULL REFERENCES judges(id),
  status TEXT NOT NULL,
  assigned_at BIGINT NOT NULL,
  started_at BIGINT,
  completed_at BIGINT,
  review_notes TEXT NOT NULL DEFAULT '',
  time_spent_minutes INTEGER NOT NULL DEFAULT 0,
  conflict_declared BOOLEAN NOT NULL DEFAULT FALSE,
  conflict_reason TEXT NOT NULL DEFAULT '',
  scoring_round INTEGER NOT NULL DEFAULT 1,
  reassigned_by TEXT NOT NULL DEFAULT '',
  reassignment_reason TEXT NOT NULL DEFAULT '',
  reassigned_at BIGINT,
  UNIQUE (application_id, judge_id)
);
CREATE INDEX IF NOT EXISTS assignments_judge_status_idx ON assignments (judge_id, status);

CREATE TABLE IF NOT EXISTS application_locks (
  id TEXT PRIMARY KEY,
  application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
  judge_id TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  locked_at BIGINT NOT NULL,
  expires_at BIGINT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  lock_type TEXT NOT NULL,
  session_id TEXT NOT NULL DEFAULT '',
  last_activity BIGINT NOT NULL,
  released_at BIGINT,
  release_reason TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS application_locks_one_active
  ON application_locks (application_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS application_locks_expiry_idx ON application_locks (is_active, expires_at);

CREATE TABLE IF NOT EXISTS scores (
  id TEXT PRIMARY KEY,
  application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
  assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
  judge_id TEXT NOT NULL REFERENCES judges(id),
  scheme TEXT NOT NULL,
  criteria_json TEXT NOT NULL,
  total_score DOUBLE PRECISION NOT NULL,
  weighted_score DOUBLE PRECISION NOT NULL,
  grade TEXT NOT NULL,
  comments TEXT NOT NULL DEFAULT '',
  review_notes TEXT NOT NULL DEFAULT '',
  time_spent_minutes INTEGER NOT NULL DEFAULT 0,
  scored_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  UNIQUE (application_id, judge_id)
);
CREATE INDEX IF NOT EXISTS scores_judge_idx ON scores (judge_id);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  judge_id TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
  seq BIGSERIAL PRIMARY KEY,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  actor TEXT NOT NULL DEFAULT '',
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_key_idx ON audit_log (key, seq);
`
