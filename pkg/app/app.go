// Package app runs a set of long-lived services as one process. When any
// service returns, the others are interrupted through their context.
package app

import (
	"context"

	"github.com/oklog/run"
)

type App struct {
	services []Service
	runner   *run.Group
}

func New() *App {
	return &App{
		services: make([]Service, 0),
		runner:   &run.Group{},
	}
}

func (a *App) WithService(s Service) *App {
	a.services = append(a.services, s)
	return a
}

// Run blocks until every service has returned and reports the first error
func (a *App) Run(ctx context.Context) error {
	for _, service := range a.services {
		a.runner.Add(actor(ctx, service))
	}

	return a.runner.Run()
}
