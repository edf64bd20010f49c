package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS nodes (
    id                  TEXT PRIMARY KEY,
    num                 BIGINT,
    shortname           TEXT,
    longname            TEXT,
    macaddr             TEXT,
    hw_model            TEXT,
    role                TEXT,
    last_heard          TIMESTAMPTZ,
    battery_level       INTEGER,
    voltage             DOUBLE PRECISION,
    channel_utilization DOUBLE PRECISION,
    air_util_tx         DOUBLE PRECISION,
    uptime_seconds      BIGINT,
    latitude            DOUBLE PRECISION,
    longitude           DOUBLE PRECISION,
    altitude            INTEGER,
    hops_away           INTEGER,
    snr                 DOUBLE PRECISION,
    rssi                INTEGER,
    node_of_interest    BOOLEAN NOT NULL DEFAULT FALSE,
    aircraft            BOOLEAN NOT NULL DEFAULT FALSE,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_nodes_shortname ON nodes(shortname);
CREATE INDEX IF NOT EXISTS idx_nodes_last_heard ON nodes(last_heard);

CREATE TABLE IF NOT EXISTS traceroutes (
    id          BIGSERIAL PRIMARY KEY,
    originator  TEXT NOT NULL,
    destination TEXT NOT NULL,
    route_to    TEXT NOT NULL DEFAULT '[]',
    route_back  TEXT NOT NULL DEFAULT '[]',
    snr_to      TEXT NOT NULL DEFAULT '[]',
    snr_back    TEXT NOT NULL DEFAULT '[]',
    hop_count   INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_traceroutes_dest ON traceroutes(destination);

CREATE TABLE IF NOT EXISTS connections (
    id              BIGSERIAL PRIMARY KEY,
    node1           TEXT NOT NULL,
    node2           TEXT NOT NULL,
    connection_type TEXT NOT NULL,
    snr             DOUBLE PRECISION,
    hop_count       INTEGER,
    last_seen       TIMESTAMPTZ NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(node1, node2, connection_type)
);
CREATE INDEX IF NOT EXISTS idx_connections_seen ON connections(last_seen);
CREATE INDEX IF NOT EXISTS idx_connections_node1 ON connections(node1);

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    kind        TEXT NOT NULL DEFAULT 'text',
    channel     INTEGER NOT NULL DEFAULT 0,
    destination TEXT NOT NULL DEFAULT '',
    body        TEXT NOT NULL,
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;
`
