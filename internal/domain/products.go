package domain

// Descriptions are kept in Italian, as published by DPC.
const (
	srtGroundDescription = "Ottenuta esclusivamente a partire dai dati raw della rete a terra provenienti dalle stazioni pluviometriche (circa 3000) e interpolata dal Dipartimento per ottenere una distribuzione omogenea sul territorio."
	cappiName            = "Constant Altitude Plan Position Indicator"
)

func cappi(code, altitude string) Product {
	return Product{
		Code:            code,
		Name:            cappiName,
		Description:     "Valore di riflettività [dBz] sulla sezione orizzontale del volume polare scansionato alla quota fissata di " + altitude + " m slm.",
		UpdateFrequency: "10T",
		MeasureType:     "reflectivity",
		MeasureUnit:     "dBZ",
		NoData:          DefaultNoData,
	}
}

func srt(code, name string) Product {
	return Product{
		Code:            code,
		Name:            name,
		Description:     srtGroundDescription,
		UpdateFrequency: "1H",
		MeasureType:     "precipitation",
		MeasureUnit:     "mm",
		NoData:          DefaultNoData,
	}
}

// products is the static catalog of DPC products. Order matters for listings
// and crontab generation.
var products = []Product{
	{
		Code:            "VMI",
		Name:            "Vertical Maximum Intensity",
		Description:     "Valore massimo di riflettività [dBz] presente sulla verticale di ogni punto. Distingue le zone con fenomeni di rilievo e li classifica per tipologia (fronti, sistemi convettivi).",
		UpdateFrequency: "5T",
		MeasureType:     "reflectivity",
		MeasureUnit:     "dBZ",
		NoData:          DefaultNoData,
	},
	{
		Code:            "SRI",
		Name:            "Surface Rainfall Intensity",
		Description:     "Stima dell'intensità di precipitazione al suolo (mm/h) ottenuta combinando la rete radar con la rete pluviometrica.",
		UpdateFrequency: "5T",
		MeasureType:     "rainfall_intensity",
		MeasureUnit:     "mm/h",
		NoData:          DefaultNoData,
	},
	{
		Code:            "SRT1",
		Name:            "Cumulata di precipitazione in 1 ora",
		Description:     "Cumulata di precipitazione (mm) nell'ultima ora dall'integrazione del dato radar SRI e dei dati della rete a terra.",
		UpdateFrequency: "5T",
		MeasureType:     "precipitation",
		MeasureUnit:     "mm",
		NoData:          DefaultNoData,
	},
	srt("SRT3", "Cumulata di precipitazione in 3 ore"),
	srt("SRT6", "Cumulata di precipitazione in 6 ore"),
	srt("SRT12", "Cumulata di precipitazione in 12 ore"),
	srt("SRT24", "Cumulata di precipitazione in 24 ore"),
	{
		Code:            "IR108",
		Name:            "Copertura nuvolosa",
		Description:     "Derivato dal canale IR 10.8 dei satelliti MSG (Meteosat Second Generation).",
		UpdateFrequency: "5T",
		MeasureType:     "brightness_temperature",
		NoData:          DefaultNoData,
	},
	{
		Code:            "TEMP",
		Name:            "Mappa delle Temperature",
		Description:     "Interpolazione dei dati raw delle stazioni termometriche della rete a terra (circa 2600).",
		UpdateFrequency: "1H",
		MeasureType:     "temperature",
		MeasureUnit:     "°C",
		NoData:          DefaultNoData,
	},
	{
		Code:            "LTG",
		Name:            "Mappa dei fulmini",
		Description:     "Stima in tempo reale della frequenza assoluta di fulminazioni dalla rete LAMPINET (Aeronautica Militare - CNMCA).",
		UpdateFrequency: "10T",
		MeasureType:     "lightning",
		NoData:          DefaultNoData,
	},
	{
		Code:            "AMV",
		Name:            "Direzione e intensità del vento in Quota",
		Description:     "Campionamento su griglia 50x50 kmq dei valori puntuali del prodotto MPEF Atmospheric Motion Vector.",
		UpdateFrequency: "20T",
		MeasureType:     "wind",
		NoData:          DefaultNoData,
	},
	{
		Code:            "HRD",
		Name:            "Heavy Rain Detection",
		Description:     "Approccio multisensore-multiparametrico che individua aree con precipitazioni intense, persistenti o temporalesche associando un Indice di Severità e la traiettoria nel brevissimo termine.",
		UpdateFrequency: "5T",
		MeasureType:     "severity_index",
		NoData:          DefaultNoData,
	},
	{
		Code:        "RADAR_STATUS",
		Name:        "Radar",
		Description: "Ubicazione dei siti. Verde: ON - Rosso: OFF",
		NoData:      DefaultNoData,
	},
	cappi("CAPPI1", "1000"),
	cappi("CAPPI2", "2000"),
	cappi("CAPPI3", "3000"),
	cappi("CAPPI4", "4000"),
	cappi("CAPPI5", "5000"),
	cappi("CAPPI6", "6000"),
	cappi("CAPPI7", "7000"),
	cappi("CAPPI8", "8000"),
}

// LookupProduct returns the product with the given code. The boolean is false
// when the code is unknown.
func LookupProduct(code string) (Product, bool) {
	for _, p := range products {
		if p.Code == code {
			return p, true
		}
	}
	return Product{}, false
}

// Products returns a copy of the static product table.
func Products() []Product {
	out := make([]Product, len(products))
	copy(out, products)
	return out
}
