package digitransit

const vehiclesQuery = `
{
  vehicles {
    id
    trip {
      id
      route {
        id
        shortName
        longName
        mode
      }
    }
    position {
      latitude
      longitude
    }
    speed
    heading
    vehicleNumber
    operatorId
  }
}`

const stopsQuery = `
query Stops($limit: Int, $offset: Int) {
  stops(limit: $limit, skip: $offset) {
    id
    name
    code
    lat
    lon
    routes {
      id
    }
    platformCode
    desc
    zoneId
  }
}`

const routesQuery = `
{
  routes {
    id
    shortName
    longName
    mode
    operatorId
    patterns {
      id
      name
      stops {
        id
      }
    }
    color
    textColor
  }
}`
