package app

// Compiled-in modules. Each registers itself with core in init.
import (
	_ "github.com/nudgeme/nudgeme/internal/gateway"
	_ "github.com/nudgeme/nudgeme/modules/memory/postgres"
	_ "github.com/nudgeme/nudgeme/modules/provider/gemini"
	_ "github.com/nudgeme/nudgeme/modules/storage/sqlite"
)
