package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	APIKey          string
	EventDirectory  string
	LogDirectory    string
	DatabasePath    string
	LogLevel        string
	PreSeconds      float64 // Pre-roll długość w sekundach
	PostSeconds     float64 // Post-roll długość w sekundach
	PixelDistance   float64 // Próg odległości osoba-wózek widłowy w pikselach
	RiskPriority    string  // "proximity" (domyślnie) albo "label"
	RulesPath       string
	DefaultModel    string // "det" albo "seg"
	ModelPathDet    string
	ModelPathSeg    string
	ModelFormat     string // "yolo" albo "ssd"
	LabelsPath      string
	InferenceURLDet string
	InferenceURLSeg string
	Confidence      float64
	PreviewInterval int // Co którą klatkę wysyłać do widzów
	CameraIndex     int
	CameraCSI       bool // Kamera CSI przez GStreamer (Jetson)
	CameraWidth     int
	CameraHeight    int
	CameraFPS       int
	MQTTBroker      string
	MQTTTopic       string
	MQTTClientID    string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	return &Config{
		Port:            getEnvAsInt("PORT", 5000),
		APIKey:          getEnv("API_KEY", ""),
		EventDirectory:  getEnv("EVENT_DIR", filepath.Join(".", "events")),
		LogDirectory:    getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DatabasePath:    getEnv("DB_PATH", filepath.Join(".", "data", "events.db")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		PreSeconds:      getEnvAsFloat("PRE_SEC", 5),
		PostSeconds:     getEnvAsFloat("POST_SEC", 5),
		PixelDistance:   getEnvAsFloat("PIXEL_DIST_THRESH", 60),
		RiskPriority:    strings.ToLower(getEnv("RISK_PRIORITY", "proximity")),
		RulesPath:       getEnv("RULES_PATH", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "det"),
		ModelPathDet:    getEnv("MODEL_PATH_DET", filepath.Join(".", "models", "det.onnx")),
		ModelPathSeg:    getEnv("MODEL_PATH_SEG", filepath.Join(".", "models", "seg.onnx")),
		ModelFormat:     strings.ToLower(getEnv("MODEL_FORMAT", "yolo")),
		LabelsPath:      getEnv("LABELS_PATH", ""),
		InferenceURLDet: getEnv("INFERENCE_URL_DET", ""),
		InferenceURLSeg: getEnv("INFERENCE_URL_SEG", ""),
		Confidence:      getEnvAsFloat("CONFIDENCE", 0.5),
		PreviewInterval: getEnvAsInt("PREVIEW_INTERVAL", 3),
		CameraIndex:     getEnvAsInt("CAMERA_INDEX", 0),
		CameraCSI:       getEnvAsBool("CAMERA_CSI", false),
		CameraWidth:     getEnvAsInt("CAMERA_WIDTH", 1280),
		CameraHeight:    getEnvAsInt("CAMERA_HEIGHT", 720),
		CameraFPS:       getEnvAsInt("CAMERA_FPS", 30),
		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTTopic:       getEnv("MQTT_TOPIC", "eventcam/events"),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "eventcam"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
