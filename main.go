package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/drishti/backend/assistant"
	"github.com/drishti/backend/config"
	"github.com/drishti/backend/database"
	"github.com/drishti/backend/export"
	"github.com/drishti/backend/gemini"
	"github.com/drishti/backend/handlers"
	"github.com/drishti/backend/heatmap"
	"github.com/drishti/backend/incident"
	"github.com/drishti/backend/inference"
	"github.com/drishti/backend/iot"
	"github.com/drishti/backend/metrics"
	"github.com/drishti/backend/natsserver"
	"github.com/drishti/backend/sampler"
	"github.com/drishti/backend/services"
	"github.com/drishti/backend/stats"
	"github.com/drishti/backend/storage"
	"github.com/drishti/backend/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.Database.URL, !cfg.Production()); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
	defer database.Close()

	// Embedded NATS is the realtime bus between the store and WebSocket clients
	natsCfg := natsserver.DefaultConfig()
	natsCfg.Port = cfg.NATS.Port
	natsCfg.MaxPayload = cfg.NATS.MaxPayload
	natsServer, err := natsserver.New(natsCfg)
	if err != nil {
		log.Fatalf("❌ Failed to start NATS server: %v", err)
	}
	defer natsServer.Shutdown()
	log.Printf("📡 NATS server started on %s", natsServer.Address())

	appMetrics := metrics.New()
	st := store.New(database.DB, natsServer)
	tracker := stats.NewTracker(st, natsServer)

	// Late subscribers get the current state of their topic first
	liveHub := services.NewLiveHub(natsServer.Conn(), func(topic string) ([]byte, bool) {
		if data, ok := tracker.Snapshot(topic); ok {
			return data, true
		}
		return st.Snapshot(topic)
	})
	go liveHub.Run()
	defer liveHub.Stop()
	log.Println("📺 Live hub initialized")

	geminiClient := gemini.NewClient("", cfg.Inference.APIKey, cfg.Inference.Timeout)

	var analyzer inference.Analyzer
	switch cfg.Inference.Backend {
	case "predict":
		analyzer = inference.NewPredictAnalyzer(cfg.Inference.Endpoint, cfg.Inference.Timeout)
		log.Printf("🧠 Frame analysis via prediction endpoint %s", cfg.Inference.Endpoint)
	case "gemini":
		if cfg.Inference.Endpoint != "" {
			geminiClient = gemini.NewClient(cfg.Inference.Endpoint, cfg.Inference.APIKey, cfg.Inference.Timeout)
		}
		analyzer = inference.NewGeminiAnalyzer(geminiClient, cfg.Inference.Model)
		log.Printf("🧠 Frame analysis via %s", cfg.Inference.Model)
	default:
		log.Fatalf("❌ Unknown inference backend %q", cfg.Inference.Backend)
	}
	if cfg.Inference.APIKey == "" {
		log.Println("⚠️ GEMINI_API_KEY not set, hosted model calls will fail")
	}

	materializer := incident.New(st, natsServer, appMetrics)

	var objects storage.ObjectStore
	if cfg.Minio.Endpoint != "" {
		minioStore, err := storage.NewMinioStore(storage.Config{
			Endpoint:      cfg.Minio.Endpoint,
			AccessKey:     cfg.Minio.AccessKey,
			SecretKey:     cfg.Minio.SecretKey,
			Bucket:        cfg.Minio.Bucket,
			UseSSL:        cfg.Minio.UseSSL,
			PublicBaseURL: cfg.Minio.PublicBaseURL,
		})
		if err != nil {
			log.Printf("⚠️ MinIO unavailable, uploads disabled: %v", err)
		} else {
			objects = minioStore
			materializer.SetObjectStore(minioStore)
			log.Printf("🗄️ Object storage at %s/%s", cfg.Minio.Endpoint, cfg.Minio.Bucket)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := export.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.IncidentsTopic)
		if err != nil {
			log.Printf("⚠️ Kafka unavailable, incident export disabled: %v", err)
		} else {
			defer producer.Close()
			materializer.SetExporter(producer)
			log.Printf("📤 Exporting incidents to Kafka topic %s", cfg.Kafka.IncidentsTopic)
		}
	}

	if cfg.MQTT.Host != "" {
		mqttClient, err := iot.NewClient(iot.Config{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
		})
		if err != nil {
			log.Printf("⚠️ MQTT unavailable, emergency signals stay local: %v", err)
		} else {
			defer mqttClient.Close()
			materializer.SetSignaler(mqttClient)
			log.Printf("🚨 Emergency signals over MQTT at %s:%d", cfg.MQTT.Host, cfg.MQTT.Port)
		}
	}

	pipeline := services.NewPipeline(analyzer, st, materializer, tracker, appMetrics)
	monitor := services.NewMonitor(ctx, st, pipeline, tracker, sampler.Config{
		Tick:     cfg.Sampler.Tick,
		Interval: cfg.Sampler.Interval,
		MaxWidth: cfg.Sampler.MaxWidth,
	}, services.FFmpegFactory(cfg.Sampler.FFmpegPath, cfg.Sampler.DecoderFPS), appMetrics)
	defer monitor.Close()

	appMetrics.GaugeFunc("drishti_live_clients", "Connected WebSocket clients", func() float64 {
		return float64(liveHub.Stats().Clients)
	})
	appMetrics.GaugeFunc("drishti_running_samplers", "Events with analysis running", func() float64 {
		return float64(monitor.RunningCount())
	})

	heatmaps := heatmap.NewAggregator(st, heatmap.Options{})
	commandAI := assistant.New(geminiClient, st, assistant.Config{
		Model:    cfg.Assistant.Model,
		TTSModel: cfg.Assistant.TTSModel,
		Voice:    cfg.Assistant.Voice,
	})

	handlers.SetStore(st)
	handlers.SetMonitor(monitor)
	handlers.SetMaterializer(materializer)
	handlers.SetTracker(tracker)
	handlers.SetHeatmap(heatmaps)
	handlers.SetAssistant(commandAI)
	handlers.SetObjectStore(objects)
	handlers.SetMetrics(appMetrics)
	handlers.SetLiveHub(liveHub)
	handlers.SetBus(natsServer)
	handlers.SetJWTSecret(cfg.Auth.JWTSecret)
	handlers.SeedAdminUser(cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)

	if cfg.Sampler.AutoStart {
		autoStart(ctx, st, monitor)
	}

	// Setup Gin router
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.ExposeHeaders = []string{"X-Heatmap-Camera"}
	router.Use(cors.New(corsConfig))

	handlers.RegisterRoutes(router)

	go func() {
		log.Printf("🚀 Server running on http://localhost:%s", cfg.Server.Port)
		if err := router.Run(":" + cfg.Server.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down")
}

// autoStart resumes analysis for every stored event
func autoStart(ctx context.Context, st *store.Store, monitor *services.Monitor) {
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	events, err := st.ListEvents(startCtx, "")
	if err != nil {
		log.Printf("⚠️ Auto start skipped: %v", err)
		return
	}
	for _, ev := range events {
		if err := monitor.Start(startCtx, ev.ID); err != nil {
			log.Printf("⚠️ Failed to start analysis for %s: %v", ev.ID, err)
			continue
		}
		log.Printf("▶️ Analysis started for %s (%s)", ev.Name, ev.ID)
	}
}
