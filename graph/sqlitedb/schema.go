package sqlitedb

// schemaDDL creates the fact relations. Facts carry the id of the source
// that owns them; edge relations carry the id of the source whose artifacts
// the edge was discovered in, which may differ from the source owning either
// endpoint.
//
// Endpoint id columns are deliberately not foreign keys: removing or
// replacing a source deletes its facts while other sources' edges keep
// referencing the old row ids. Such dangling references are part of the
// removal contract and traversals tolerate them.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS sources (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS classes (
	id           INTEGER PRIMARY KEY,
	name         TEXT NOT NULL,
	access_flags INTEGER NOT NULL,
	source       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS classes_name_idx   ON classes (name);
CREATE INDEX IF NOT EXISTS classes_source_idx ON classes (source);

CREATE TABLE IF NOT EXISTS methods (
	id           INTEGER PRIMARY KEY,
	class        INTEGER NOT NULL,
	name         TEXT NOT NULL,
	args         TEXT NOT NULL,
	ret          TEXT NOT NULL,
	access_flags INTEGER NOT NULL,
	source       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS methods_name_idx   ON methods (name);
CREATE INDEX IF NOT EXISTS methods_class_idx  ON methods (class);
CREATE INDEX IF NOT EXISTS methods_source_idx ON methods (source);

CREATE TABLE IF NOT EXISTS calls (
	caller INTEGER NOT NULL,
	callee INTEGER NOT NULL,
	source INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS calls_caller_idx ON calls (caller);
CREATE INDEX IF NOT EXISTS calls_callee_idx ON calls (callee);
CREATE INDEX IF NOT EXISTS calls_source_idx ON calls (source);

CREATE TABLE IF NOT EXISTS supers (
	parent INTEGER NOT NULL,
	child  INTEGER NOT NULL,
	source INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS supers_parent_idx ON supers (parent);
CREATE INDEX IF NOT EXISTS supers_child_idx  ON supers (child);
CREATE INDEX IF NOT EXISTS supers_source_idx ON supers (source);

CREATE TABLE IF NOT EXISTS interfaces (
	interface INTEGER NOT NULL,
	class     INTEGER NOT NULL,
	source    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS interfaces_interface_idx ON interfaces (interface);
CREATE INDEX IF NOT EXISTS interfaces_class_idx     ON interfaces (class);
CREATE INDEX IF NOT EXISTS interfaces_source_idx    ON interfaces (source);

CREATE TABLE IF NOT EXISTS load_status (
	source INTEGER NOT NULL,
	kind   INTEGER NOT NULL,
	PRIMARY KEY (source, kind)
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
