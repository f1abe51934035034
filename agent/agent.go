package agent

import (
	"sync"
	"time"

	"github.com/botforge/chatflow/config"
	"github.com/botforge/chatflow/engine"
	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/metadata"
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	"github.com/botforge/chatflow/persistence/inmem"
	rds "github.com/botforge/chatflow/persistence/redis"
	"github.com/botforge/chatflow/rest"
	"github.com/botforge/chatflow/scheduler"
	"github.com/botforge/chatflow/service"
	"github.com/botforge/chatflow/transport"
)

// Agent wires the configured backend, engine, scheduler and REST
// surface together and owns their lifecycle.
type Agent struct {
	Config          config.Config
	storage         persistence.Storage
	metadataService metadata.Service
	engine          *engine.Engine
	executorService *service.FlowExecutionService
	httpServer      *rest.Server
	poller          *scheduler.Poller
	timerScheduler  *scheduler.TimerScheduler
	shutdown        bool
	shutdownLock    sync.Mutex
	wg              sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config: conf,
	}
	setup := []func() error{
		a.setupStorage,
		a.setupEngine,
		a.setupScheduler,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_INMEM:
		a.storage = inmem.NewStorage()
	default:
		a.storage = rds.NewRedisStorage(rds.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		})
	}
	a.metadataService = metadata.NewService(a.storage.Metadata())
	return nil
}

func (a *Agent) setupEngine() error {
	lockWait := time.Duration(a.Config.LockWaitMillis) * time.Millisecond
	tr := transport.NewLogTransport()

	var sched engine.Scheduler
	if a.Config.StorageType == config.STORAGE_TYPE_INMEM {
		a.timerScheduler = scheduler.NewTimerScheduler(nil)
		sched = a.timerScheduler
	} else {
		sched = scheduler.NewQueueScheduler(a.storage.DelayQueue(), a.Config.DelayPartitions)
	}
	a.engine = engine.NewEngine(a.metadataService, a.storage, tr, tr, sched,
		a.Config.MaxStepsPerAdvance, lockWait)
	a.executorService = service.NewFlowExecutionService(a.engine, a.storage.DelayQueue())
	return nil
}

func (a *Agent) setupScheduler() error {
	handler := func(event *model.InboundEvent) error {
		_, err := a.executorService.HandleInbound(event)
		return err
	}
	if a.timerScheduler != nil {
		a.timerScheduler.SetHandler(handler)
		a.timerScheduler.Start()
		return nil
	}
	interval := time.Duration(a.Config.DelayPollSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	a.poller = scheduler.NewPoller(a.storage.DelayQueue(), a.Config.DelayPartitions, interval, handler, &a.wg)
	a.poller.Start()
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.metadataService, a.executorService)
	return err
}

func (a *Agent) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Info("http server stopped")
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	if a.poller != nil {
		a.poller.Stop()
	}
	if a.timerScheduler != nil {
		a.timerScheduler.Stop()
	}
	if err := a.httpServer.Stop(); err != nil {
		return err
	}
	a.wg.Wait()
	logger.Sync()
	return nil
}
