package store

// SchemaSQL contains the library schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- BOOK TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS book SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON book TYPE string;
    DEFINE FIELD IF NOT EXISTS author ON book TYPE string;
    DEFINE FIELD IF NOT EXISTS isbn ON book TYPE option<string>;
    -- Normalized ISBN (separators stripped) used for import dedup.
    DEFINE FIELD IF NOT EXISTS isbn_norm ON book TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS publisher ON book TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS year ON book TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS cover_url ON book TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS language ON book TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS author_country ON book TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS labels ON book TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS enrich_error ON book TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON book TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON book TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS book_isbn_norm ON book FIELDS isbn_norm UNIQUE;
    DEFINE INDEX IF NOT EXISTS book_author ON book FIELDS author;
    DEFINE INDEX IF NOT EXISTS book_labels ON book FIELDS labels;
`
