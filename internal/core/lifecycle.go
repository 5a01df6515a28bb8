package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules that accept YAML configuration.
// Configure receives the raw node of the module's entry under "modules" and
// runs before Provision. It is skipped when the config has no entry.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup after instantiation:
// opening connections, resolving defaults, registering services.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can check their configuration
// after Provision. Validate must not mutate state.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that run background work once every
// module has been provisioned.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that hold resources. Stop is called in
// reverse start order during shutdown.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader is implemented by modules that can apply a changed configuration
// without a restart. The AppContext carries the new module configs.
type Reloader interface {
	Reload(ctx *AppContext) error
}
