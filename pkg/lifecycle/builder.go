package lifecycle

import (
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// Builder constructs a [Service].
//
//	svc, err := lifecycle.NewBuilder("authn", "1.4.0").
//	    WithComponent("postgres", db.Health).
//	    WithOnStart(store.Migrate).
//	    WithOnStop(func(context.Context) error { db.Close(); return nil }).
//	    Build()
type Builder struct {
	name          string
	version       string
	components    []Component
	logger        *slog.Logger
	onStart       Hook
	onStop        Hook
	stateHandlers []StateChangeHandler
}

// NewBuilder starts a builder. name and version are checked by Build.
func NewBuilder(name, version string) *Builder {
	return &Builder{name: name, version: version}
}

// WithComponent registers a health check. A nil check is ignored.
func (b *Builder) WithComponent(name string, check HealthCheck) *Builder {
	if check != nil {
		b.components = append(b.components, Component{Name: name, Check: check})
	}
	return b
}

// WithLogger sets the logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithOnStart sets the hook run between Starting and Running.
func (b *Builder) WithOnStart(hook Hook) *Builder {
	b.onStart = hook
	return b
}

// WithOnStop sets the hook run between Stopping and Stopped.
func (b *Builder) WithOnStop(hook Hook) *Builder {
	b.onStop = hook
	return b
}

// OnStateChange adds a transition observer. Observers run in
// registration order.
func (b *Builder) OnStateChange(handler StateChangeHandler) *Builder {
	b.stateHandlers = append(b.stateHandlers, handler)
	return b
}

// Build validates the builder and returns a service in [StateUnknown].
func (b *Builder) Build() (*Service, error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service name must not be empty")
	}
	if b.version == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service version must not be empty")
	}
	for _, c := range b.components {
		if c.Name == "" {
			return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: component name must not be empty")
		}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		name:          b.name,
		version:       b.version,
		state:         StateUnknown,
		components:    slices.Clone(b.components),
		onStart:       b.onStart,
		onStop:        b.onStop,
		stateHandlers: slices.Clone(b.stateHandlers),
		logger:        logger,
		tracer:        otel.Tracer(tracerName),
	}, nil
}
