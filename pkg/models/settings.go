package models

import "fmt"

// Resolution is the export label of a project; no transcoding happens
type Resolution string

// Resolution constants
const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
	Resolution4K    Resolution = "4k"
)

// AspectRatio of the edited output
type AspectRatio string

// AspectRatio constants
const (
	AspectRatioVertical   AspectRatio = "9:16"
	AspectRatioHorizontal AspectRatio = "16:9"
	AspectRatioSquare     AspectRatio = "1:1"
)

// DubbingLanguage is a target language for AI dubbing
type DubbingLanguage string

// DubbingLanguage constants
const (
	DubbingPortuguese DubbingLanguage = "pt"
	DubbingEnglish    DubbingLanguage = "en"
	DubbingSpanish    DubbingLanguage = "es"
)

// Dubbing configuration
type Dubbing struct {
	Enabled  bool            `json:"enabled"`
	Language DubbingLanguage `json:"language"`
}

// VideoSettings is the editing configuration copied into new projects
type VideoSettings struct {
	Resolution     Resolution  `json:"resolution"`
	AspectRatio    AspectRatio `json:"aspect_ratio"`
	AutoSubtitles  bool        `json:"auto_subtitles"`
	AutoHighlights bool        `json:"auto_highlights"`
	AutoBroll      bool        `json:"auto_broll"`
	Dubbing        *Dubbing    `json:"dubbing,omitempty"`
	VoiceCloning   *bool       `json:"voice_cloning,omitempty"`
}

// DefaultVideoSettings returns the settings a new session starts with
func DefaultVideoSettings() VideoSettings {
	voiceCloning := false
	return VideoSettings{
		Resolution:     Resolution1080p,
		AspectRatio:    AspectRatioVertical,
		AutoSubtitles:  true,
		AutoHighlights: true,
		AutoBroll:      false,
		Dubbing: &Dubbing{
			Enabled:  false,
			Language: DubbingPortuguese,
		},
		VoiceCloning: &voiceCloning,
	}
}

// Clone returns a deep copy so that callers never share the optional fields
func (s VideoSettings) Clone() VideoSettings {
	out := s
	if s.Dubbing != nil {
		d := *s.Dubbing
		out.Dubbing = &d
	}
	if s.VoiceCloning != nil {
		v := *s.VoiceCloning
		out.VoiceCloning = &v
	}
	return out
}

// Validate checks every field against its allowed values
func (s VideoSettings) Validate() error {
	if err := validateResolution(s.Resolution); err != nil {
		return err
	}
	if err := validateAspectRatio(s.AspectRatio); err != nil {
		return err
	}
	if s.Dubbing != nil {
		if err := validateLanguage(s.Dubbing.Language); err != nil {
			return err
		}
	}
	return nil
}

// SettingsPatch is a partial update of VideoSettings; nil fields are left untouched
type SettingsPatch struct {
	Resolution     *Resolution  `json:"resolution,omitempty"`
	AspectRatio    *AspectRatio `json:"aspect_ratio,omitempty"`
	AutoSubtitles  *bool        `json:"auto_subtitles,omitempty"`
	AutoHighlights *bool        `json:"auto_highlights,omitempty"`
	AutoBroll      *bool        `json:"auto_broll,omitempty"`
	Dubbing        *Dubbing     `json:"dubbing,omitempty"`
	VoiceCloning   *bool        `json:"voice_cloning,omitempty"`
}

// Validate checks the set fields against their allowed values
func (p SettingsPatch) Validate() error {
	if p.Resolution != nil {
		if err := validateResolution(*p.Resolution); err != nil {
			return err
		}
	}
	if p.AspectRatio != nil {
		if err := validateAspectRatio(*p.AspectRatio); err != nil {
			return err
		}
	}
	if p.Dubbing != nil {
		if err := validateLanguage(p.Dubbing.Language); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of s with the patch merged in
func (s VideoSettings) Apply(p SettingsPatch) VideoSettings {
	out := s.Clone()
	if p.Resolution != nil {
		out.Resolution = *p.Resolution
	}
	if p.AspectRatio != nil {
		out.AspectRatio = *p.AspectRatio
	}
	if p.AutoSubtitles != nil {
		out.AutoSubtitles = *p.AutoSubtitles
	}
	if p.AutoHighlights != nil {
		out.AutoHighlights = *p.AutoHighlights
	}
	if p.AutoBroll != nil {
		out.AutoBroll = *p.AutoBroll
	}
	if p.Dubbing != nil {
		d := *p.Dubbing
		out.Dubbing = &d
	}
	if p.VoiceCloning != nil {
		v := *p.VoiceCloning
		out.VoiceCloning = &v
	}
	return out
}

func validateResolution(r Resolution) error {
	switch r {
	case Resolution720p, Resolution1080p, Resolution4K:
		return nil
	}
	return fmt.Errorf("unsupported resolution %q", r)
}

func validateAspectRatio(a AspectRatio) error {
	switch a {
	case AspectRatioVertical, AspectRatioHorizontal, AspectRatioSquare:
		return nil
	}
	return fmt.Errorf("unsupported aspect ratio %q", a)
}

func validateLanguage(l DubbingLanguage) error {
	switch l {
	case DubbingPortuguese, DubbingEnglish, DubbingSpanish:
		return nil
	}
	return fmt.Errorf("unsupported dubbing language %q", l)
}
