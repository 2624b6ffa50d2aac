package main

// General API documentation for swaggo. The registered document lives in
// internal/apidocs and is served with -tags=swagger.
//
// @title           genrelay API
// @version         1.0
// @description     Thin gateway that forwards text-generation requests to an OpenAI-compatible provider.
//
// @contact.name   genrelay maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
