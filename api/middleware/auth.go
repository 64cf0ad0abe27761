/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/tally/config"
	"github.com/jerry-enebeli/tally/internal/apierror"
)

const (
	KeyHeader = "X-Tally-Key"

	// ActorKey is the gin context key holding who made the request.
	ActorKey = "actor"

	masterActor = "master"
)

var pathToResource = map[string]Resource{
	"uploads":        ResourceUploads,
	"counterparties": ResourceCounterparties,
	"period-locks":   ResourcePeriodLocks,
}

// AuthMiddleware checks the X-Tally-Key header against the master key and
// the operator keys in the server configuration.
type AuthMiddleware struct{}

func NewAuthMiddleware() *AuthMiddleware {
	return &AuthMiddleware{}
}

func getResourceFromPath(path string) Resource {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return pathToResource[parts[0]]
}

func findKey(keys []config.APIKey, key string) (config.APIKey, bool) {
	for _, k := range keys {
		if k.Key != "" && secureCompare(k.Key, key) {
			return k, true
		}
	}
	return config.APIKey{}, false
}

func abort(c *gin.Context, status int, code apierror.ErrorCode, message string) {
	c.AbortWithStatusJSON(status, apierror.NewAPIError(code, message, nil))
}

// Authenticate returns a middleware function that handles authentication and authorization for all routes.
// The master key may do anything. Operator keys are limited to their scopes,
// and their owner is recorded as the actor of the request.
//
// Responses:
// - 401 Unauthorized: When the key is missing or unknown.
// - 403 Forbidden: When the key lacks the scope for the resource and method.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/" {
			c.Next()
			return
		}

		conf, err := config.Fetch()
		if err != nil {
			abort(c, http.StatusInternalServerError, apierror.ErrInternalServer, "configuration is not loaded")
			return
		}
		if !conf.Server.Secure {
			c.Set(ActorKey, masterActor)
			c.Next()
			return
		}

		key := c.GetHeader(KeyHeader)
		if key == "" {
			abort(c, http.StatusUnauthorized, apierror.ErrBadRequest, "Authentication required. Use X-Tally-Key header")
			return
		}

		if conf.Server.SecretKey != "" && secureCompare(conf.Server.SecretKey, key) {
			c.Set(ActorKey, masterActor)
			c.Next()
			return
		}

		apiKey, ok := findKey(conf.Server.APIKeys, key)
		if !ok {
			abort(c, http.StatusUnauthorized, apierror.ErrBadRequest, "Invalid API key")
			return
		}

		resource := getResourceFromPath(c.Request.URL.Path)
		if resource == "" {
			abort(c, http.StatusForbidden, apierror.ErrBadRequest, "Unknown resource type")
			return
		}
		if !HasPermission(apiKey.Scopes, resource, c.Request.Method) {
			action := methodToAction[c.Request.Method]
			abort(c, http.StatusForbidden, apierror.ErrBadRequest, "Insufficient permissions for "+BuildScope(resource, action))
			return
		}

		c.Set(ActorKey, apiKey.Owner)
		c.Next()
	}
}
