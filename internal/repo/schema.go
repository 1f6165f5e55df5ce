package repo

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
  pipeline_id TEXT NOT NULL,
  run_id      TEXT NOT NULL,
  status      TEXT NOT NULL,
  message     TEXT,
  runner      TEXT NOT NULL DEFAULT '',
  iteration   TEXT,
  input       JSONB,
  started_at  TIMESTAMPTZ,
  finished_at TIMESTAMPTZ,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (pipeline_id, run_id)
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_created_at ON pipeline_runs (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs (status);

CREATE TABLE IF NOT EXISTS task_results (
  pipeline_id   TEXT NOT NULL,
  run_id        TEXT NOT NULL,
  pipeline_task TEXT NOT NULL,
  task_id       TEXT NOT NULL DEFAULT '',
  status        TEXT NOT NULL,
  config        JSONB,
  input         JSONB,
  message       TEXT,
  started_at    TIMESTAMPTZ,
  completed_at  TIMESTAMPTZ,
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (pipeline_id, run_id, pipeline_task),
  FOREIGN KEY (pipeline_id, run_id) REFERENCES pipeline_runs (pipeline_id, run_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS pipeline_logs (
  id          BIGSERIAL PRIMARY KEY,
  pipeline_id TEXT NOT NULL,
  run_id      TEXT NOT NULL,
  status      TEXT NOT NULL,
  message     TEXT,
  created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_logs_run ON pipeline_logs (pipeline_id, run_id);

CREATE TABLE IF NOT EXISTS task_logs (
  id            BIGSERIAL PRIMARY KEY,
  pipeline_id   TEXT NOT NULL,
  run_id        TEXT NOT NULL,
  pipeline_task TEXT NOT NULL,
  task_id       TEXT NOT NULL DEFAULT '',
  status        TEXT NOT NULL,
  message       TEXT,
  created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_logs_run ON task_logs (pipeline_id, run_id);

CREATE TABLE IF NOT EXISTS run_values (
  pipeline_id TEXT NOT NULL,
  run_id      TEXT NOT NULL,
  key         TEXT NOT NULL,
  value       JSONB NOT NULL,
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (pipeline_id, run_id, key)
);
`
