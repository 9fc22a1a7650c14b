package imaging

// Profile names an ICC profile. Path is handed to the backend verbatim:
// libvips resolves the built-in names "cmyk" and "srgb" itself.
type Profile struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

var (
	DefaultCMYKProfile = Profile{Name: "USWebCoatedSWOP", Path: "cmyk"}
	DefaultSRGBProfile = Profile{Name: "sRGB_v4_ICC_preference", Path: "srgb"}
)

// Profiles is the pair used by the post-decode CMYK fix-up.
type Profiles struct {
	CMYK Profile `mapstructure:"cmyk"`
	SRGB Profile `mapstructure:"srgb"`
}

func DefaultProfiles() Profiles {
	return Profiles{CMYK: DefaultCMYKProfile, SRGB: DefaultSRGBProfile}
}
