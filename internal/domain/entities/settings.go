package entities

// TranscriptionSettings is the singleton row of global capture/transcription
// defaults. Per-session overrides (Session.Override*) win over these values.
type TranscriptionSettings struct {
	ID uint `json:"id" gorm:"primaryKey"`

	SegmentLengthMinutes  int `json:"segment_length_minutes" gorm:"not null;default:10"`
	SilenceTimeoutMinutes int `json:"silence_timeout_minutes" gorm:"not null;default:30"`
	MaxSessionHours       int `json:"max_session_hours" gorm:"not null;default:8"`

	SampleRate           int    `json:"sample_rate" gorm:"not null;default:16000"`
	AudioChannels        string `json:"audio_channels" gorm:"type:varchar(10);not null;default:'mono'"`
	AudioFormat          string `json:"audio_format" gorm:"type:varchar(10);not null;default:'wav'"`
	SilenceThresholdDBFS int    `json:"silence_threshold_dbfs" gorm:"not null;default:-40"`

	WhisperModel string `json:"whisper_model" gorm:"type:varchar(20);not null;default:'base'"`

	BaseArchiveDir  string `json:"base_archive_dir" gorm:"type:text;not null"`
	FolderStructure string `json:"folder_structure" gorm:"type:varchar(20);not null;default:'flat'"` // flat | year-based
	MinFreeDiskGB   int    `json:"min_free_disk_gb" gorm:"not null;default:5"`
}

// TableName specifies the table name for GORM
func (TranscriptionSettings) TableName() string {
	return "transcription_settings"
}

// ChannelCount maps the stored channel label to an ffmpeg channel count
func (t *TranscriptionSettings) ChannelCount() int {
	if t.AudioChannels == "stereo" {
		return 2
	}
	return 1
}
