package main

// General API documentation for swaggo. Build with -tags=swagger to serve it.
//
// @title           warmsetd API
// @version         1.0
// @description     Warm-set chunk cache, NOVAQ quality gate and deterministic generation.
//
// @contact.name   warmsetd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
