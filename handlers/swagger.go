package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves the API description.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>collabdocs API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": {
    "title": "collabdocs",
    "version": "v1.0.0"
  },
  "components": {
    "securitySchemes": {
      "bearer": {
        "type": "http",
        "scheme": "bearer",
        "bearerFormat": "JWT"
      }
    }
  },
  "paths": {
    "/api/auth/register": {
      "post": {
        "summary": "Create an account",
        "responses": {
          "201": {
            "description": "account created, tokens returned"
          },
          "400": {
            "description": "invalid input or email taken"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "name": {
                    "type": "string"
                  },
                  "email": {
                    "type": "string"
                  },
                  "password": {
                    "type": "string"
                  }
                }
              }
            }
          }
        }
      }
    },
    "/api/auth/login": {
      "post": {
        "summary": "Sign in with email and password",
        "responses": {
          "200": {
            "description": "tokens returned"
          },
          "401": {
            "description": "invalid credentials"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "email": {
                    "type": "string"
                  },
                  "password": {
                    "type": "string"
                  }
                }
              }
            }
          }
        }
      }
    },
    "/api/auth/refresh": {
      "post": {
        "summary": "Rotate a refresh token",
        "responses": {
          "200": {
            "description": "new token pair"
          },
          "401": {
            "description": "invalid refresh token"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "refreshToken": {
                    "type": "string"
                  }
                }
              }
            }
          }
        }
      }
    },
    "/api/auth/logout": {
      "post": {
        "summary": "Drop the refresh session and revoke the access token",
        "responses": {
          "200": {
            "description": "logged out"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "refreshToken": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/auth/me": {
      "get": {
        "summary": "Current account",
        "responses": {
          "200": {
            "description": "account"
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/auth/profile": {
      "put": {
        "summary": "Update name, avatar or bio",
        "responses": {
          "200": {
            "description": "account"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "name": {
                    "type": "string"
                  },
                  "avatar": {
                    "type": "string"
                  },
                  "bio": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/auth/password": {
      "put": {
        "summary": "Change password",
        "responses": {
          "200": {
            "description": "new token pair"
          },
          "400": {
            "description": "current password incorrect"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "currentPassword": {
                    "type": "string"
                  },
                  "newPassword": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/auth/forgot-password": {
      "post": {
        "summary": "Request a password reset link",
        "responses": {
          "200": {
            "description": "reset link issued"
          },
          "404": {
            "description": "unknown email"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "email": {
                    "type": "string"
                  }
                }
              }
            }
          }
        }
      }
    },
    "/api/auth/reset-password/{token}": {
      "put": {
        "summary": "Reset password with a reset token",
        "responses": {
          "200": {
            "description": "new token pair"
          },
          "400": {
            "description": "invalid or expired token"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "password": {
                    "type": "string"
                  }
                }
              }
            }
          }
        }
      }
    },
    "/api/documents": {
      "get": {
        "summary": "List accessible documents",
        "responses": {
          "200": {
            "description": "page of documents"
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      },
      "post": {
        "summary": "Create a document",
        "responses": {
          "201": {
            "description": "document created"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "title": {
                    "type": "string"
                  },
                  "content": {
                    "type": "string"
                  },
                  "isPublic": {
                    "type": "boolean"
                  },
                  "tags": {
                    "type": "array"
                  }
                }
              }
            }
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/documents/search": {
      "get": {
        "summary": "Full-text search over accessible documents",
        "responses": {
          "200": {
            "description": "matching documents"
          },
          "400": {
            "description": "missing query"
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/documents/{id}": {
      "get": {
        "summary": "Read a document (public documents need no token)",
        "responses": {
          "200": {
            "description": "document"
          },
          "403": {
            "description": "access denied"
          },
          "404": {
            "description": "not found"
          }
        }
      },
      "put": {
        "summary": "Update title, content, visibility, tags or archive state",
        "responses": {
          "200": {
            "description": "updated document and changes"
          },
          "400": {
            "description": "no changes detected"
          },
          "403": {
            "description": "edit permission denied"
          },
          "409": {
            "description": "stale expectedVersion"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "title": {
                    "type": "string"
                  },
                  "content": {
                    "type": "string"
                  },
                  "isPublic": {
                    "type": "boolean"
                  },
                  "tags": {
                    "type": "array"
                  },
                  "isArchived": {
                    "type": "boolean"
                  },
                  "changeNote": {
                    "type": "string"
                  },
                  "expectedVersion": {
                    "type": "integer"
                  }
                }
              }
            }
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      },
      "delete": {
        "summary": "Delete a document (owner only)",
        "responses": {
          "200": {
            "description": "deleted"
          },
          "403": {
            "description": "delete permission denied"
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/documents/{id}/share": {
      "post": {
        "summary": "Share with a registered user",
        "responses": {
          "200": {
            "description": "document"
          },
          "403": {
            "description": "share permission denied"
          },
          "404": {
            "description": "user not found"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "email": {
                    "type": "string"
                  },
                  "permission": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/documents/{id}/share/{userId}": {
      "delete": {
        "summary": "Revoke a collaborator",
        "responses": {
          "200": {
            "description": "document"
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/documents/{id}/versions": {
      "get": {
        "summary": "Version history, newest first",
        "responses": {
          "200": {
            "description": "versions"
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/documents/{id}/restore/{versionId}": {
      "post": {
        "summary": "Restore a previous version as a new version",
        "responses": {
          "200": {
            "description": "document"
          },
          "404": {
            "description": "version not found"
          },
          "409": {
            "description": "stale expectedVersion"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "expectedVersion": {
                    "type": "integer"
                  }
                }
              }
            }
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/documents/{id}/export": {
      "post": {
        "summary": "Export content to object storage",
        "responses": {
          "200": {
            "description": "download URL"
          },
          "503": {
            "description": "export storage not configured"
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/api/documents/{id}/export/{version}": {
      "get": {
        "summary": "Download an exported version through the API",
        "responses": {
          "200": {
            "description": "markdown attachment"
          },
          "404": {
            "description": "version or export not found"
          },
          "503": {
            "description": "export storage not configured"
          }
        },
        "security": [
          {
            "bearer": []
          }
        ]
      }
    },
    "/ws": {
      "get": {
        "summary": "Realtime change channel (websocket, token query parameter)",
        "responses": {
          "101": {
            "description": "switching protocols"
          },
          "401": {
            "description": "missing or invalid token"
          }
        }
      }
    },
    "/health": {
      "get": {
        "summary": "Liveness check",
        "responses": {
          "200": {
            "description": "healthy"
          }
        }
      }
    },
    "/ready": {
      "get": {
        "summary": "Readiness check",
        "responses": {
          "200": {
            "description": "ready"
          },
          "503": {
            "description": "not ready"
          }
        }
      }
    },
    "/metrics": {
      "get": {
        "summary": "Prometheus metrics",
        "responses": {
          "200": {
            "description": "metrics"
          }
        }
      }
    }
  }
}`
