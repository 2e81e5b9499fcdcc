package postgres

// queryListColumns has one %s placeholder for the schema filter clause. It
// returns every table/view column in scope, ordered so rows for one table
// arrive together.
const queryListColumns = `
	SELECT c.table_name, c.column_name
	FROM information_schema.columns c
	JOIN information_schema.tables t
		ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE %s
		AND t.table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY c.table_name, c.ordinal_position`
