package app

// Drivers de directorio y backend; se registran en init().
import (
	_ "github.com/dropDatabas3/userrelay/internal/backend/memory"
	_ "github.com/dropDatabas3/userrelay/internal/backend/pg"
	_ "github.com/dropDatabas3/userrelay/internal/backend/supabase"
	_ "github.com/dropDatabas3/userrelay/internal/directory/fs"
	_ "github.com/dropDatabas3/userrelay/internal/directory/pg"
	_ "github.com/dropDatabas3/userrelay/internal/directory/rest"
)
