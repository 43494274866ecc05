/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
// @title           rdrealty-lms API
// @version         1.0
// @description     Multi-tenant back-office API: material requests, HR requests, fixed assets and inventory verification

// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and a JWT issued by rdrealty-lms
package main

import "github.com/mautops/rdrealty-lms/cmd"

func main() {
	cmd.Execute()
}
