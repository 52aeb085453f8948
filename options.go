package rtreflect

// Option configures a ReflectionPass during creation.
type Option func(*passOptions)

// passOptions holds optional configuration for ReflectionPass creation.
type passOptions struct {
	clusterFactory func() LightCluster
	shaderPass     string
}

func defaultPassOptions() passOptions {
	return passOptions{shaderPass: ReflectionShaderPass}
}

// WithLightCluster sets the factory used to construct the light cluster
// at Initialize. It takes precedence over Dependencies.NewLightCluster.
func WithLightCluster(factory func() LightCluster) Option {
	return func(o *passOptions) {
		o.clusterFactory = factory
	}
}

// WithShaderPass overrides the material pass selected for hit shading.
func WithShaderPass(name string) Option {
	return func(o *passOptions) {
		if name != "" {
			o.shaderPass = name
		}
	}
}
