package main

import (
	"log"

	"github.com/1008610010/copycat/xlog"
)

var logger = xlog.NewLogger("example")

func main() {
	xlog.SetDebug(true)

	log.Println("Hello World!")
	logger.Println("Hello World!")
	logger.Debugln("Hello World!")

	xlog.SetDebug(false)
	logger.Debugln("DO NOT PRINT THIS")
	logger.Infoln("Done!")
}

/*
2016-07-17 15:37:36.741912 I | Hello World!
2016-07-17 15:37:36.741992 I | example: Hello World!
2016-07-17 15:37:36.742014 D | example: Hello World!
2016-07-17 15:37:36.742021 I | example: Done!
*/
