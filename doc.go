/*
Package rodvision captures frames from the overhead camera of a Eurobot
table and locates the ArUco tags on it in table millimetres.

The root package holds the frame acquisition engine.  An Engine cycles a
fixed ring of capture requests, each bound to one frame buffer, through a
Device and hands the caller a copy of each completed frame:

	engine := rodvision.NewEngine(device)
	err := engine.Start(rodvision.Resolution{Width: 1920, Height: 1080},
		rodvision.DefaultParameters())
	frame, err := engine.CaptureFrame(time.Second)
	defer frame.Release()

Devices live in the camera packages.  Tag classification is in tags,
camera to table calibration in calib, the table mask in fieldmask and the
per frame loop in pipeline.
*/
package rodvision
