package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nnsuite/nnpipe"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve DESCRIPTION",
		Short: "Run pipeline controlled over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := nnpipe.New(args[0], nnpipe.WithConfig(cfg))
			if err != nil {
				return err
			}
			defer p.Close()
			return serve(ctx, addr, p)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}

func serve(ctx context.Context, addr string, p *nnpipe.Pipeline) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: newRouter(p),
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	logrus.Infof("serving %s on %s", p.Name(), addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newRouter returns control API of the pipeline.
func newRouter(p *nnpipe.Pipeline) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.HandleMethodNotAllowed = true

	r.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"name": p.Name(), "state": p.State().String()})
	})
	r.POST("/start", func(c *gin.Context) {
		respond(c, p, p.Start())
	})
	r.POST("/stop", func(c *gin.Context) {
		respond(c, p, p.Stop())
	})
	r.POST("/flush", func(c *gin.Context) {
		reset, err := strconv.ParseBool(c.DefaultQuery("reset", "false"))
		if err != nil {
			respond(c, p, nnpipe.ErrInvalidArgument)
			return
		}
		respond(c, p, p.Flush(reset))
	})
	r.POST("/valves/:name", func(c *gin.Context) {
		open, err := strconv.ParseBool(c.Query("open"))
		if err != nil {
			respond(c, p, nnpipe.ErrInvalidArgument)
			return
		}
		respond(c, p, p.ControlValve(c.Param("name"), open))
	})
	r.GET("/selectors/:name", func(c *gin.Context) {
		pads, err := p.SwitchPads(c.Param("name"))
		if err != nil {
			respond(c, p, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pads": pads})
	})
	r.POST("/selectors/:name", func(c *gin.Context) {
		respond(c, p, p.SelectSwitchPad(c.Param("name"), c.Query("pad")))
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(p.Metric().Gatherer(), promhttp.HandlerOpts{})))
	return r
}

func respond(c *gin.Context, p *nnpipe.Pipeline, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"state": p.State().String()})
		return
	}
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, nnpipe.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, nnpipe.ErrNoSuchElement):
		return http.StatusNotFound
	case errors.Is(err, nnpipe.ErrClosedPipeline):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
