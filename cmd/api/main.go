package main

// @title           GST Books API
// @version         1.0
// @description     GST invoicing, double-entry ledger and TDS tracking.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	Execute()
}
