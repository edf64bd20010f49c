package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS nodes (
    id                  TEXT PRIMARY KEY,
    num                 INTEGER,
    shortname           TEXT,
    longname            TEXT,
    macaddr             TEXT,
    hw_model            TEXT,
    role                TEXT,
    last_heard          TEXT,
    battery_level       INTEGER,
    voltage             REAL,
    channel_utilization REAL,
    air_util_tx         REAL,
    uptime_seconds      INTEGER,
    latitude            REAL,
    longitude           REAL,
    altitude            INTEGER,
    hops_away           INTEGER,
    snr                 REAL,
    rssi                INTEGER,
    node_of_interest    INTEGER NOT NULL DEFAULT 0,
    aircraft            INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_nodes_shortname ON nodes(shortname);
CREATE INDEX IF NOT EXISTS idx_nodes_last_heard ON nodes(last_heard);

CREATE TABLE IF NOT EXISTS traceroutes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    originator  TEXT NOT NULL,
    destination TEXT NOT NULL,
    route_to    TEXT NOT NULL DEFAULT '[]',
    route_back  TEXT NOT NULL DEFAULT '[]',
    snr_to      TEXT NOT NULL DEFAULT '[]',
    snr_back    TEXT NOT NULL DEFAULT '[]',
    hop_count   INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_traceroutes_dest ON traceroutes(destination);

CREATE TABLE IF NOT EXISTS connections (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    node1           TEXT NOT NULL,
    node2           TEXT NOT NULL,
    connection_type TEXT NOT NULL,
    snr             REAL,
    hop_count       INTEGER,
    last_seen       TEXT NOT NULL,
    created_at      TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    UNIQUE(node1, node2, connection_type)
);
CREATE INDEX IF NOT EXISTS idx_connections_seen ON connections(last_seen);
CREATE INDEX IF NOT EXISTS idx_connections_node1 ON connections(node1);

CREATE TABLE IF NOT EXISTS outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    kind        TEXT NOT NULL DEFAULT 'text',
    channel     INTEGER NOT NULL DEFAULT 0,
    destination TEXT NOT NULL DEFAULT '',
    body        TEXT NOT NULL,
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;
`
