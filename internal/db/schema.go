package db

// SchemaSQL contains the database schema initialization SQL.
// The full run is stored as a JSON document; summary columns exist for ordering and filtering.
const SchemaSQL = `
    -- ==========================================================================
    -- RUN TABLE (extraction run ledger)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS run SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS status ON run TYPE string ASSERT $value IN ["running", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS started_ms ON run TYPE int;
    DEFINE FIELD IF NOT EXISTS video_path ON run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS used_fallback ON run TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS rating ON run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS summary ON run TYPE string;
    DEFINE FIELD IF NOT EXISTS document ON run TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON run TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON run TYPE datetime VALUE time::now();

    DEFINE INDEX IF NOT EXISTS run_started ON run FIELDS started_ms;
    DEFINE INDEX IF NOT EXISTS run_status ON run FIELDS status;
`
