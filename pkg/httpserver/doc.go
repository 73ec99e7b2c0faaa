// Package httpserver runs the governor's status endpoint: an http.Server
// whose lifetime follows a context, plus liveness and readiness handlers
// mounted on a chi router.
//
//	checks := []httpserver.Check{
//		{Name: "postgres", Fn: pg.Healthcheck(pool)},
//		{Name: "redis", Fn: lock.Healthcheck(client)},
//	}
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error {
//		return srv.Run(ctx, httpserver.NewRouter(log, cfg.CheckTimeout, checks...))
//	})
//
// Run returns when ctx is cancelled, after a graceful shutdown bounded by
// the shutdown timeout. Listen errors match ErrStart and shutdown errors
// match ErrShutdown.
package httpserver
