package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marking_backend/internal/config"
	"marking_backend/internal/controller"
	"marking_backend/internal/repository"
	"marking_backend/internal/service"
	"marking_backend/pkg/database"
	"marking_backend/pkg/logger"
	"marking_backend/pkg/monitoring"
	"marking_backend/pkg/security"
	"marking_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	repos           *repositories
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user         *repository.UserRepository
	assignment   *repository.AssignmentRepository
	grade        *repository.GradeRepository
	allocation   *repository.AllocationRepository
	group        *repository.GroupRepository
	feedback     *repository.FeedbackRepository
	taskProgress *repository.TaskProgressRepository
}

type services struct {
	marking    *service.MarkingService
	assignment *service.AssignmentService
	feedback   *service.FeedbackService
	progress   *service.TaskProgressService
	jobs       *service.JobService
}

type controllers struct {
	marking    *controller.MarkingController
	assignment *controller.AssignmentController
	progress   *controller.TaskProgressController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 配置文件变化后由 configwatcher 调用
func (a *App) ApplyConfig(cfg *config.Config) {
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		assignment:   repository.NewAssignmentRepository(db),
		grade:        repository.NewGradeRepository(db),
		allocation:   repository.NewAllocationRepository(db),
		group:        repository.NewGroupRepository(db),
		feedback:     repository.NewFeedbackRepository(db),
		taskProgress: repository.NewTaskProgressRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	progression, err := cfg.Marking.Progression()
	if err != nil {
		return nil, err
	}

	var events service.GradeEventPublisher = service.NopGradeEventPublisher{}
	if rdb != nil {
		events = service.NewRedisGradeEventPublisher(rdb, cfg.Redis.Channel)
	}

	s := &services{}
	s.marking = service.NewMarkingService(
		repos.assignment,
		repos.grade,
		repos.allocation,
		repos.group,
		repos.user,
		progression,
		events,
	)
	s.progress = service.NewTaskProgressService(repos.taskProgress)
	s.jobs = service.NewJobService(s.marking, s.progress)
	s.assignment = service.NewAssignmentService(repos.assignment, cfg.Marking)
	s.assignment.Regrader = s.jobs
	s.feedback = service.NewFeedbackService(repos.feedback, s.marking)

	// 评阅流程顺序支持热更新，配置有误时保留当前顺序
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		p, err := newCfg.Marking.Progression()
		if err != nil {
			logger.Log.Error("ignore invalid workflow states", zap.Error(err))
			return
		}
		if err := logger.SetLevel(newCfg); err != nil {
			logger.Log.Error("ignore invalid log level", zap.Error(err))
		}
		s.marking.SetProgression(p)
		s.assignment.Defaults = newCfg.Marking
		logger.Log.Info("marking config reloaded", zap.Strings("workflowStates", p.States()))
	})

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		marking:    controller.NewMarkingController(s.marking, s.feedback, s.jobs),
		assignment: controller.NewAssignmentController(s.assignment, s.jobs),
		progress:   controller.NewTaskProgressController(s.progress),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute, security.ClientIPKey))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services, cfg *config.Config) {
	maxAge := time.Duration(cfg.Marking.ProgressStaleHours) * time.Hour
	go func() {
		ticker := time.NewTicker(time.Minute)
		for range ticker.C {
			if _, err := s.progress.PurgeStale(maxAge); err != nil {
				logger.Log.Error("purge task progress error", zap.Error(err))
			}
		}
	}()
}

// newApp 组装依赖和路由，rdb 为 nil 时不发布成绩事件
func newApp(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	app.repos = repos
	services, err := app.initServices(repos, cfg, rdb)
	if err != nil {
		return nil, err
	}
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)

	return app, nil
}

func NewApp(cfg *config.Config) *App {
	if err := logger.InitLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	migrate := cfg.ForceMigrate || cfg.Server.Mode != "release"
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	// 监控初始化
	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	app, err := newApp(cfg, db, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize application", zap.Error(err))
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("marking-backend", cfg.Tracing)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.startBackgroundTasks(app.services, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// 等待正在执行的后台重新计算
	if a.services != nil {
		a.services.jobs.Wait()
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
