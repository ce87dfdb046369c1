// Copyright 2024 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main implements the server analyzing waterfall build failures and
// running try-jobs to find their culprits.
package main

import (
	"context"
	"flag"
	"net/http"

	"go.chromium.org/luci/common/api/gitiles"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	luciserver "go.chromium.org/luci/server"
	"go.chromium.org/luci/server/auth"
	"go.chromium.org/luci/server/auth/openid"
	"go.chromium.org/luci/server/cron"
	"go.chromium.org/luci/server/gaeemulation"
	"go.chromium.org/luci/server/module"
	"go.chromium.org/luci/server/router"
	"go.chromium.org/luci/server/tq"

	"go.chromium.org/findit/internal/buildbucket"
	"go.chromium.org/findit/internal/config"
	internalgitiles "go.chromium.org/findit/internal/gitiles"
	"go.chromium.org/findit/tryjob"
	"go.chromium.org/findit/waterfall"
)

const (
	// Members may call the build failure API.
	apiAccessGroup = "findit-api-access"
	// Members may abort try-jobs.
	adminGroup = "findit-administrators"

	changeLogCacheSize = 1000
)

// checkMembership returns middleware that checks if the caller is a member
// of the group.
func checkMembership(group string) router.Middleware {
	return func(ctx *router.Context, next router.Handler) {
		switch yes, err := auth.IsMember(ctx.Request.Context(), group); {
		case err != nil:
			logging.Errorf(ctx.Request.Context(), "error in checking membership %s", err.Error())
			http.Error(ctx.Writer, "Error in authorizing the user.", http.StatusInternalServerError)
		case !yes:
			http.Error(ctx.Writer, "Access denied.", http.StatusForbidden)
		default:
			next(ctx)
		}
	}
}

func changeLogLookup(ctx context.Context, cfg *config.Config) (*internalgitiles.CachedLookup, error) {
	transport, err := auth.GetRPCTransport(ctx, auth.AsSelf, auth.WithScopes(gitiles.OAuthScope))
	if err != nil {
		return nil, errors.Annotate(err, "getting RPC Transport").Err()
	}
	client, err := gitiles.NewRESTClient(&http.Client{Transport: transport}, cfg.Gitiles.Host, true)
	if err != nil {
		return nil, errors.Annotate(err, "creating Gitiles client").Err()
	}
	repo := internalgitiles.NewRepository(client, cfg.Gitiles.Host, cfg.Gitiles.Project)
	return internalgitiles.NewCachedLookup(repo, changeLogCacheSize), nil
}

func main() {
	settingsFile := flag.String("settings-file", "", "A YAML file with the service settings to import at startup and periodically.")
	buildbucketHost := flag.String("buildbucket-host", buildbucket.DefaultHost, "The Buildbucket host to trigger try-jobs on.")

	modules := []module.Module{
		cron.NewModuleFromFlags(),
		gaeemulation.NewModuleFromFlags(),
		tq.NewModuleFromFlags(),
	}

	luciserver.Main(nil, modules, func(srv *luciserver.Server) error {
		if *settingsFile != "" {
			if err := config.ImportFile(srv.Context, *settingsFile); err != nil {
				return err
			}
			cron.RegisterHandler("import-settings", func(ctx context.Context) error {
				return config.ImportFile(ctx, *settingsFile)
			})
		}
		cfg, err := config.Get(srv.Context)
		if err != nil {
			return err
		}

		transport, err := auth.GetRPCTransport(srv.Context, auth.AsSelf)
		if err != nil {
			return errors.Annotate(err, "getting RPC Transport").Err()
		}
		httpClient := &http.Client{Transport: transport}
		lookup, err := changeLogLookup(srv.Context, cfg)
		if err != nil {
			return err
		}

		orchestrator := &tryjob.Orchestrator{
			Buildbucket: buildbucket.NewClient(httpClient, *buildbucketHost),
			Lookup:      lookup,
			Dispatcher:  &tq.Default,
		}
		orchestrator.RegisterTaskClass()
		trigger := &waterfall.Trigger{
			Analyzer:     &waterfall.HTTPAnalyzer{Client: httpClient},
			Orchestrator: orchestrator,
			Dispatcher:   &tq.Default,
		}
		trigger.RegisterTaskClasses()

		authenticate := auth.Authenticate(&openid.GoogleIDTokenAuthMethod{
			AudienceCheck: openid.AudienceMatchesHost,
		})
		apiMwc := router.NewMiddlewareChain(authenticate, checkMembership(apiAccessGroup))
		srv.Routes.POST(waterfall.BuildFailurePath, apiMwc, trigger.HandleBuildFailures)
		adminMwc := router.NewMiddlewareChain(authenticate, checkMembership(adminGroup))
		srv.Routes.POST(tryjob.AbortPath, adminMwc, tryjob.HandleAbort)
		return nil
	})
}
