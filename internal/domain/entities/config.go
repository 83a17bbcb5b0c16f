package entities

// EffectiveConfig is the merged configuration a session actually runs with:
// per-session overrides applied over the global settings row. The orchestrator
// computes it once, snapshots it onto the session, and hands it to the
// capturer process as JSON.
type EffectiveConfig struct {
	SegmentLengthMinutes  int    `json:"segment_length_minutes"`
	SilenceTimeoutMinutes int    `json:"silence_timeout_minutes"`
	MaxSessionHours       int    `json:"max_session_hours"`
	SampleRate            int    `json:"sample_rate"`
	AudioChannels         string `json:"audio_channels"`
	AudioFormat           string `json:"audio_format"`
	SilenceThresholdDBFS  int    `json:"silence_threshold_dbfs"`
	WhisperModel          string `json:"whisper_model"`
	BaseArchiveDir        string `json:"base_archive_dir"`
	FolderStructure       string `json:"folder_structure"`
	MinFreeDiskGB         int    `json:"min_free_disk_gb"`
}

// MergeConfig applies session overrides over the global settings
func MergeConfig(session *Session, settings *TranscriptionSettings) EffectiveConfig {
	cfg := EffectiveConfig{
		SegmentLengthMinutes:  settings.SegmentLengthMinutes,
		SilenceTimeoutMinutes: settings.SilenceTimeoutMinutes,
		MaxSessionHours:       settings.MaxSessionHours,
		SampleRate:            settings.SampleRate,
		AudioChannels:         settings.AudioChannels,
		AudioFormat:           settings.AudioFormat,
		SilenceThresholdDBFS:  settings.SilenceThresholdDBFS,
		WhisperModel:          settings.WhisperModel,
		BaseArchiveDir:        settings.BaseArchiveDir,
		FolderStructure:       settings.FolderStructure,
		MinFreeDiskGB:         settings.MinFreeDiskGB,
	}
	if session.OverrideSegmentLength != nil && *session.OverrideSegmentLength > 0 {
		cfg.SegmentLengthMinutes = *session.OverrideSegmentLength
	}
	if session.OverrideSilenceTimeout != nil && *session.OverrideSilenceTimeout > 0 {
		cfg.SilenceTimeoutMinutes = *session.OverrideSilenceTimeout
	}
	if session.OverrideMaxDuration != nil && *session.OverrideMaxDuration > 0 {
		cfg.MaxSessionHours = *session.OverrideMaxDuration
	}
	return cfg
}

// ChannelCount maps the channel label to an ffmpeg channel count
func (c EffectiveConfig) ChannelCount() int {
	if c.AudioChannels == "stereo" {
		return 2
	}
	return 1
}
