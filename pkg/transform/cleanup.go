package transform

// CleanupExtraProperties strips the usage.extra_properties object some
// upstreams attach; no client dialect knows what to do with it.
type CleanupExtraProperties struct{}

func NewCleanupExtraProperties() *CleanupExtraProperties {
	return &CleanupExtraProperties{}
}

func (t *CleanupExtraProperties) Name() string  { return "cleanup_extra_properties" }
func (t *CleanupExtraProperties) Stage() Stage  { return StageProvider }
func (t *CleanupExtraProperties) Priority() int { return 20 }

func (t *CleanupExtraProperties) Applies(tc *Context) bool {
	if tc.Provider == nil {
		return false
	}
	usage := asMap(tc.Provider.Body["usage"])
	_, ok := usage["extra_properties"]
	return ok
}

func (t *CleanupExtraProperties) Transform(tc *Context) error {
	delete(asMap(tc.Provider.Body["usage"]), "extra_properties")
	return nil
}
