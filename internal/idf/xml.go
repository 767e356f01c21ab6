package idf

import "encoding/xml"

// Namespace is the XML namespace of Mantid instrument definitions.
const Namespace = "http://www.mantidproject.org/IDF/1.0"

type xmlInstrument struct {
	XMLName    xml.Name
	Name       string         `xml:"name,attr"`
	Defaults   *xmlDefaults   `xml:"defaults"`
	Types      []xmlType      `xml:"type"`
	Components []xmlComponent `xml:"component"`
	IDLists    []xmlIDList    `xml:"idlist"`
}

type xmlDefaults struct {
	Length         *xmlUnit           `xml:"length"`
	Angle          *xmlUnit           `xml:"angle"`
	ReferenceFrame *xmlReferenceFrame `xml:"reference-frame"`
}

type xmlUnit struct {
	Unit string `xml:"unit,attr"`
}

type xmlReferenceFrame struct {
	AlongBeam  *xmlAxis `xml:"along-beam"`
	PointingUp *xmlAxis `xml:"pointing-up"`
}

type xmlAxis struct {
	Axis string `xml:"axis,attr"`
}

type xmlType struct {
	Name string `xml:"name,attr"`
	Is   string `xml:"is,attr"`

	// RectangularDetector and StructuredDetector parameters.
	PixelType string `xml:"type,attr"`
	XPixels   string `xml:"xpixels,attr"`
	XStart    string `xml:"xstart,attr"`
	XStep     string `xml:"xstep,attr"`
	YPixels   string `xml:"ypixels,attr"`
	YStart    string `xml:"ystart,attr"`
	YStep     string `xml:"ystep,attr"`

	Cylinder   *xmlCylinder   `xml:"cylinder"`
	Cuboid     *xmlCuboid     `xml:"cuboid"`
	Components []xmlComponent `xml:"component"`
	Vertices   []xmlPoint     `xml:"vertex"`
}

type xmlCylinder struct {
	ID                 string    `xml:"id,attr"`
	CentreOfBottomBase *xmlPoint `xml:"centre-of-bottom-base"`
	Axis               *xmlPoint `xml:"axis"`
	Radius             *xmlValue `xml:"radius"`
	Height             *xmlValue `xml:"height"`
}

type xmlCuboid struct {
	ID               string    `xml:"id,attr"`
	LeftFrontBottom  *xmlPoint `xml:"left-front-bottom-point"`
	LeftFrontTop     *xmlPoint `xml:"left-front-top-point"`
	LeftBackBottom   *xmlPoint `xml:"left-back-bottom-point"`
	RightFrontBottom *xmlPoint `xml:"right-front-bottom-point"`
}

type xmlValue struct {
	Val string `xml:"val,attr"`
}

type xmlPoint struct {
	X string `xml:"x,attr"`
	Y string `xml:"y,attr"`
	Z string `xml:"z,attr"`
	R string `xml:"r,attr"`
	T string `xml:"t,attr"`
	P string `xml:"p,attr"`
}

type xmlComponent struct {
	Type          string         `xml:"type,attr"`
	Name          string         `xml:"name,attr"`
	IDList        string         `xml:"idlist,attr"`
	IDStart       string         `xml:"idstart,attr"`
	IDStep        string         `xml:"idstep,attr"`
	IDStepByRow   string         `xml:"idstepbyrow,attr"`
	IDFillByFirst string         `xml:"idfillbyfirst,attr"`
	Locations     []xmlLocation  `xml:"location"`
	LocationSets  []xmlLocations `xml:"locations"`
}

type xmlLocation struct {
	xmlPoint
	Name  string `xml:"name,attr"`
	Rot   string `xml:"rot,attr"`
	AxisX string `xml:"axis-x,attr"`
	AxisY string `xml:"axis-y,attr"`
	AxisZ string `xml:"axis-z,attr"`
}

type xmlLocations struct {
	Name      string `xml:"name,attr"`
	NElements string `xml:"n-elements,attr"`
	X         string `xml:"x,attr"`
	XEnd      string `xml:"x-end,attr"`
	Y         string `xml:"y,attr"`
	YEnd      string `xml:"y-end,attr"`
	Z         string `xml:"z,attr"`
	ZEnd      string `xml:"z-end,attr"`
}

type xmlIDList struct {
	IDName string  `xml:"idname,attr"`
	Name   string  `xml:"name,attr"`
	IDs    []xmlID `xml:"id"`
}

type xmlID struct {
	Start string `xml:"start,attr"`
	End   string `xml:"end,attr"`
	Val   string `xml:"val,attr"`
}
