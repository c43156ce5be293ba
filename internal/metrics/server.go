package metrics

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "metrics")

// Status /api/status 的响应
type Status struct {
	Phase           string           `json:"phase"`
	Balance         string           `json:"balance"`
	Bets            int64            `json:"bets"`
	Wins            int64            `json:"wins"`
	CyclesStarted   int64            `json:"cyclesStarted"`
	CyclesHit       int64            `json:"cyclesHit"`
	CyclesAborted   int64            `json:"cyclesAborted"`
	TransportErrors int64            `json:"transportErrors"`
	Faults          int64            `json:"faults"`
	GuardTrips      map[string]int64 `json:"guardTrips"`
}

// Snapshot 当前计数器的只读副本
func Snapshot() Status {
	st := Status{
		Phase:           Phase.Value(),
		Balance:         Balance.Value(),
		Bets:            Bets.Value(),
		Wins:            Wins.Value(),
		CyclesStarted:   CyclesStarted.Value(),
		CyclesHit:       CyclesHit.Value(),
		CyclesAborted:   CyclesAborted.Value(),
		TransportErrors: TransportErrors.Value(),
		Faults:          Faults.Value(),
		GuardTrips:      map[string]int64{},
	}
	GuardTrips.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			st.GuardTrips[kv.Key] = v.Value()
		}
	})
	return st
}

func newRouter() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/status", func(c *gin.Context) { c.JSON(http.StatusOK, Snapshot()) })
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	// pprof：显式挂到自己的路由上，不依赖 DefaultServeMux
	debug := r.Group("/debug/pprof")
	debug.GET("/", gin.WrapF(pprof.Index))
	debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	debug.GET("/profile", gin.WrapF(pprof.Profile))
	debug.GET("/symbol", gin.WrapF(pprof.Symbol))
	debug.GET("/trace", gin.WrapF(pprof.Trace))
	debug.GET("/:name", gin.WrapF(pprof.Index))
	return r
}

// StartAsync 启动 metrics/debug 服务（非阻塞），并在 ctx.Done() 时优雅关闭：
// - status: /api/status（JSON 汇总）
// - expvar: /debug/vars（下注/命中/周期/风控计数）
// - pprof:  /debug/pprof
// - health: /healthz
// 建议仅监听 localhost。
func StartAsync(ctx context.Context, listenAddr string) (*http.Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	s := &http.Server{
		Addr:              listenAddr,
		Handler:           newRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Infof("📈 metrics listening on %s", ln.Addr())

	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	return s, nil
}
